package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var maxVATRate = decimal.NewFromInt(1)

// Fraction digits kept by the invoice_lines quantity and vat_rate columns.
const (
	quantityScale = 3
	vatRateScale  = 4
)

// fitsScale reports whether d has no significant digits past places.
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// LineInput is a line as supplied by a caller, before it gets an id.
type LineInput struct {
	ItemID      *string         `json:"item_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   Money           `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"`
}

// Normalize trims text fields and drops a blank item reference.
func (in LineInput) Normalize() LineInput {
	in.Description = strings.TrimSpace(in.Description)
	if in.ItemID != nil {
		itemID := strings.TrimSpace(*in.ItemID)
		if itemID == "" {
			in.ItemID = nil
		} else {
			in.ItemID = &itemID
		}
	}
	return in
}

func (in LineInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return ErrInvalidDescription
	}
	if !in.Quantity.IsPositive() || !fitsScale(in.Quantity, quantityScale) {
		return ErrInvalidQuantity
	}
	if in.UnitPrice < 0 {
		return ErrInvalidUnitPrice
	}
	if in.VATRate.IsNegative() || in.VATRate.GreaterThan(maxVATRate) || !fitsScale(in.VATRate, vatRateScale) {
		return ErrInvalidVATRate
	}
	return nil
}

// LinePatch changes selected fields of an existing line. A non-nil empty
// ItemID clears the item reference.
type LinePatch struct {
	ItemID      *string          `json:"item_id,omitempty"`
	Description *string          `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice   *Money           `json:"unit_price,omitempty"`
	VATRate     *decimal.Decimal `json:"vat_rate,omitempty"`
}

// Apply returns the line with the patch applied, validated as a whole.
func (p LinePatch) Apply(line InvoiceLine) (InvoiceLine, error) {
	in := LineInput{
		ItemID:      line.ItemID,
		Description: line.Description,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		VATRate:     line.VATRate,
	}
	if p.ItemID != nil {
		itemID := *p.ItemID
		in.ItemID = &itemID
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Quantity != nil {
		in.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		in.UnitPrice = *p.UnitPrice
	}
	if p.VATRate != nil {
		in.VATRate = *p.VATRate
	}

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return InvoiceLine{}, err
	}

	line.ItemID = in.ItemID
	line.Description = in.Description
	line.Quantity = in.Quantity
	line.UnitPrice = in.UnitPrice
	line.VATRate = in.VATRate
	return line, nil
}
