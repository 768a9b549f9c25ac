package pdf

import (
	"context"
	"errors"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
)

var ErrReceiptMissing = errors.New("receipt_missing")

type ReceiptLine struct {
	Description string
	Quantity    string
	UnitPrice   string
	VATRate     string
	Amount      string
}

type ReceiptData struct {
	InvoiceNumber    string
	ClientName       string
	CashRegisterCode string
	OKP              string
	QRCode           string
	IssuedAt         time.Time

	Lines []ReceiptLine

	Subtotal string
	VATTotal string
	Total    string
	Paid     string
}

// NewReceiptData flattens a fiscalized invoice into printable strings.
func NewReceiptData(detail invoicedomain.InvoiceDetail, clientName string) (ReceiptData, error) {
	if detail.Receipt == nil {
		return ReceiptData{}, ErrReceiptMissing
	}

	inv := detail.Invoice
	lines := make([]ReceiptLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		net, _ := invoicedomain.LineAmounts(line)
		lines = append(lines, ReceiptLine{
			Description: line.Description,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.String(),
			VATRate:     line.VATRate.Shift(2).String() + "%",
			Amount:      net.String(),
		})
	}

	return ReceiptData{
		InvoiceNumber:    inv.Number,
		ClientName:       clientName,
		CashRegisterCode: detail.Receipt.CashRegisterCode,
		OKP:              detail.Receipt.OKP,
		QRCode:           detail.Receipt.QRCode,
		IssuedAt:         detail.Receipt.IssuedAt,
		Lines:            lines,
		Subtotal:         inv.SubtotalAmount.String(),
		VATTotal:         inv.VATAmount.String(),
		Total:            inv.TotalAmount.String(),
		Paid:             inv.PaidAmount.String(),
	}, nil
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if receipt.OKP == "" {
		return Document{}, ErrReceiptMissing
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Fiscal receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, p.merchantName, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+receipt.InvoiceNumber, props.Text{Top: 0}),
			text.New("Issued at: "+receipt.IssuedAt.UTC().Format("2006-01-02 15:04"), props.Text{Top: 5}),
			text.New("Cash register: "+receipt.CashRegisterCode, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.ClientName, props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "VAT", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range receipt.Lines {
		m.AddRow(8,
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Quantity, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, line.VATRate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	for _, total := range []struct{ label, value string }{
		{"Subtotal", receipt.Subtotal},
		{"VAT", receipt.VATTotal},
		{"Total", receipt.Total},
		{"Paid", receipt.Paid},
	} {
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, total.label, props.Text{Size: 9}),
			text.NewCol(2, total.value, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(40,
		code.NewQrCol(4, receipt.QRCode, props.Rect{Center: true, Percent: 90}),
		col.New(8).Add(
			text.New("OKP", props.Text{Style: fontstyle.Bold, Size: 9, Top: 10}),
			text.New(receipt.OKP, props.Text{Size: 8, Top: 15}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return Document{}, err
	}

	return Document{
		FileName:    ReceiptFileName(receipt.InvoiceNumber),
		ContentType: "application/pdf",
		Content:     doc.GetBytes(),
	}, nil
}
