package pdf

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/vetbill/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Document is a rendered file ready to be streamed to the caller.
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
}

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (Document, error)
}

type PDFProvider struct {
	merchantName string
}

func New(cfg config.Config) Provider {
	return &PDFProvider{merchantName: strings.TrimSpace(cfg.Ekasa.MerchantName)}
}

// ReceiptFileName turns an invoice number into a download name such as
// "receipt-inv-1000.pdf".
func ReceiptFileName(invoiceNumber string) string {
	name := slug.Make("receipt " + invoiceNumber)
	if name == "" {
		name = "receipt"
	}
	return name + ".pdf"
}
