package domain

import "github.com/shopspring/decimal"

type Totals struct {
	Subtotal Money `json:"subtotal"`
	VATTotal Money `json:"vat_total"`
	Total    Money `json:"total"`
}

// ComputeTotals sums the exact line amounts and rounds each aggregate to cents
// once. Total is the sum of the two rounded aggregates.
func ComputeTotals(lines []InvoiceLine) Totals {
	net := decimal.Zero
	vat := decimal.Zero
	for _, line := range lines {
		lineNet := line.Quantity.Mul(line.UnitPrice.Decimal())
		net = net.Add(lineNet)
		vat = vat.Add(lineNet.Mul(line.VATRate))
	}

	subtotal := MoneyFromDecimal(net)
	vatTotal := MoneyFromDecimal(vat)
	return Totals{
		Subtotal: subtotal,
		VATTotal: vatTotal,
		Total:    subtotal + vatTotal,
	}
}

// LineAmounts returns the rounded net and VAT of a single line, for display.
func LineAmounts(line InvoiceLine) (net Money, vat Money) {
	lineNet := line.Quantity.Mul(line.UnitPrice.Decimal())
	return MoneyFromDecimal(lineNet), MoneyFromDecimal(lineNet.Mul(line.VATRate))
}
