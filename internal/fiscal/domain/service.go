// Package domain describes eKasa fiscal receipt issuance.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type IssueRequest struct {
	InvoiceNumber string
	Total         decimal.Decimal
	IssuedAt      time.Time
}

// Issuance is the signed result of registering a sale with the cash register.
type Issuance struct {
	OKP              string
	QRCode           string
	CashRegisterCode string
	IssuedAt         time.Time
}

type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (Issuance, error)
}

var (
	ErrInvalidInvoiceNumber = errors.New("invalid_invoice_number")
	ErrInvalidIssuedAt      = errors.New("invalid_issued_at")
	ErrMissingSigningKey    = errors.New("missing_signing_key")
)
