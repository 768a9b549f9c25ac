package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/smallbiznis/vetbill/internal/config"
	fiscaldomain "github.com/smallbiznis/vetbill/internal/fiscal/domain"
	"go.uber.org/zap"
)

const okpGroups = 5

// Issuer signs receipts locally with the cash register key. The same
// (number, total, issuedAt) always yields the same OKP.
type Issuer struct {
	log              *zap.Logger
	key              []byte
	cashRegisterCode string
}

func NewIssuer(cfg config.Config, log *zap.Logger) (fiscaldomain.Issuer, error) {
	key := strings.TrimSpace(cfg.Ekasa.SigningKey)
	if key == "" {
		return nil, fiscaldomain.ErrMissingSigningKey
	}
	return &Issuer{
		log:              log.Named("fiscal.issuer"),
		key:              []byte(key),
		cashRegisterCode: cfg.Ekasa.CashRegisterCode,
	}, nil
}

func (i *Issuer) Issue(ctx context.Context, req fiscaldomain.IssueRequest) (fiscaldomain.Issuance, error) {
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		return fiscaldomain.Issuance{}, fiscaldomain.ErrInvalidInvoiceNumber
	}
	if req.IssuedAt.IsZero() {
		return fiscaldomain.Issuance{}, fiscaldomain.ErrInvalidIssuedAt
	}

	issuedAt := req.IssuedAt.UTC()
	total := req.Total.StringFixed(2)
	okp := i.sign(number, total, issuedAt.UnixNano())

	i.log.Debug("issued fiscal receipt",
		zap.String("invoice_number", number),
		zap.String("okp", okp),
	)

	return fiscaldomain.Issuance{
		OKP:              okp,
		QRCode:           fmt.Sprintf("QR:%s:%s:%s", number, total, okp),
		CashRegisterCode: i.cashRegisterCode,
		IssuedAt:         issuedAt,
	}, nil
}

func (i *Issuer) sign(number, total string, issuedAtNanos int64) string {
	mac := hmac.New(sha256.New, i.key)
	fmt.Fprintf(mac, "%s|%s|%s|%d", i.cashRegisterCode, number, total, issuedAtNanos)
	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	groups := make([]string, 0, okpGroups)
	for g := 0; g < okpGroups; g++ {
		groups = append(groups, digest[g*8:(g+1)*8])
	}
	return strings.Join(groups, "-")
}
