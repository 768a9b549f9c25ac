package pdf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/vetbill/internal/config"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiscalizedDetail() invoicedomain.InvoiceDetail {
	inv := invoicedomain.Invoice{
		Number: "INV-1000",
		Lines: []invoicedomain.InvoiceLine{
			{Description: "Consultation", Quantity: decimal.NewFromInt(2), UnitPrice: 2500, VATRate: decimal.RequireFromString("0.2")},
			{Description: "Syringe", Quantity: decimal.NewFromInt(100), UnitPrice: 40, VATRate: decimal.RequireFromString("0.2")},
		},
	}
	inv.Recalculate()
	inv.PaidAmount = inv.TotalAmount

	return invoicedomain.InvoiceDetail{
		Invoice: inv,
		Receipt: &invoicedomain.EkasaReceipt{
			InvoiceNumber:    "INV-1000",
			OKP:              "0a1b2c3d-4e5f6071-8293a4b5-c6d7e8f9-0a1b2c3d",
			QRCode:           "QR:INV-1000:108.00:0a1b2c3d-4e5f6071-8293a4b5-c6d7e8f9-0a1b2c3d",
			CashRegisterCode: "88812345678900001",
			IssuedAt:         time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestNewReceiptData(t *testing.T) {
	data, err := NewReceiptData(fiscalizedDetail(), "Nina Novak")
	require.NoError(t, err)

	assert.Equal(t, "INV-1000", data.InvoiceNumber)
	assert.Equal(t, "90.00", data.Subtotal)
	assert.Equal(t, "18.00", data.VATTotal)
	assert.Equal(t, "108.00", data.Total)
	require.Len(t, data.Lines, 2)
	assert.Equal(t, "50.00", data.Lines[0].Amount)
	assert.Equal(t, "20%", data.Lines[0].VATRate)

	_, err = NewReceiptData(invoicedomain.InvoiceDetail{}, "Nina Novak")
	assert.ErrorIs(t, err, ErrReceiptMissing)
}

func TestGenerateReceipt(t *testing.T) {
	data, err := NewReceiptData(fiscalizedDetail(), "Nina Novak")
	require.NoError(t, err)

	provider := New(config.Config{Ekasa: config.EkasaConfig{MerchantName: "Happy Paws"}})
	doc, err := provider.GenerateReceipt(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, "receipt-inv-1000.pdf", doc.FileName)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("%PDF")))
}

func TestGenerateReceiptRequiresOKP(t *testing.T) {
	_, err := New(config.Config{}).GenerateReceipt(context.Background(), ReceiptData{InvoiceNumber: "INV-1"})
	assert.ErrorIs(t, err, ErrReceiptMissing)
}

func TestReceiptFileName(t *testing.T) {
	assert.Equal(t, "receipt-inv-1000.pdf", ReceiptFileName("INV-1000"))
	assert.Equal(t, "receipt.pdf", ReceiptFileName(""))
}
