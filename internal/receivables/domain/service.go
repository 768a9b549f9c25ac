package domain

import (
	"context"
	"time"

	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
)

// AgingBuckets sums open receivables by days since invoice creation.
type AgingBuckets struct {
	Current    invoicedomain.Money `json:"current"`
	Days31To60 invoicedomain.Money `json:"d31to60"`
	Days61To90 invoicedomain.Money `json:"d61to90"`
	Days90Plus invoicedomain.Money `json:"d90plus"`
}

type OpenInvoice struct {
	ID               string              `json:"id"`
	Number           string              `json:"number"`
	ReceivableAmount invoicedomain.Money `json:"receivable_amount"`
	CreatedAt        time.Time           `json:"created_at"`
	AgeDays          int                 `json:"age_days"`
}

type Report struct {
	AsOf             time.Time           `json:"as_of"`
	TotalReceivable  invoicedomain.Money `json:"total_receivable"`
	OpenInvoiceCount int                 `json:"open_invoice_count"`
	OverdueCount     int                 `json:"overdue_count"`
	OverdueDays      int                 `json:"overdue_days"`
	AgingBuckets     AgingBuckets        `json:"aging_buckets"`
	ByInvoice        []OpenInvoice       `json:"by_invoice"`
}

type Service interface {
	Compute(ctx context.Context, now time.Time) (Report, error)
}
