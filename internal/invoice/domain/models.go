// Package domain contains the invoice aggregate and its billing rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Invoice is the billing aggregate. Totals, receivable and status are derived
// from lines, payments and refunds and are never edited directly.
type Invoice struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number           string        `gorm:"type:text;not null;uniqueIndex:ux_invoices_number" json:"number"`
	ClientID         string        `gorm:"type:text;not null;index" json:"client_id"`
	PetID            *string       `gorm:"type:text" json:"pet_id,omitempty"`
	Status           InvoiceStatus `gorm:"type:text;not null;index" json:"status"`
	EkasaStatus      EkasaStatus   `gorm:"type:text;not null" json:"ekasa_status"`
	SubtotalAmount   Money         `gorm:"not null;default:0" json:"subtotal"`
	VATAmount        Money         `gorm:"not null;default:0" json:"vat_total"`
	TotalAmount      Money         `gorm:"not null;default:0" json:"total"`
	PaidAmount       Money         `gorm:"not null;default:0" json:"paid_amount"`
	RefundedAmount   Money         `gorm:"not null;default:0" json:"refunded_amount"`
	ReceivableAmount Money         `gorm:"not null;default:0;index" json:"receivable_amount"`
	Version          int64         `gorm:"not null;default:0" json:"version"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
	FiscalizedAt     *time.Time    `json:"fiscalized_at,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
	Lines            []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

func (inv *Invoice) WasApproved() bool {
	return inv.ApprovedAt != nil
}

func (inv *Invoice) IsDraft() bool {
	return inv.Status == InvoiceStatusDraft
}

// Recalculate re-derives totals, receivable and status from the current lines
// and ledger fields.
func (inv *Invoice) Recalculate() {
	totals := ComputeTotals(inv.Lines)
	inv.SubtotalAmount = totals.Subtotal
	inv.VATAmount = totals.VATTotal
	inv.TotalAmount = totals.Total
	inv.refreshLedger()
}

func (inv *Invoice) refreshLedger() {
	inv.ReceivableAmount = inv.TotalAmount - inv.PaidAmount + inv.RefundedAmount
	inv.Status = DeriveStatus(inv.PaidAmount, inv.RefundedAmount, inv.TotalAmount, inv.WasApproved())
}

// MarkApproved freezes the lines. Only valid on a draft.
func (inv *Invoice) MarkApproved(at time.Time) {
	approvedAt := at.UTC()
	inv.ApprovedAt = &approvedAt
	inv.refreshLedger()
}

// ApplyPayment records amount as paid and re-derives status.
func (inv *Invoice) ApplyPayment(amount Money) {
	inv.PaidAmount += amount
	inv.refreshLedger()
}

// ApplyRefund records amount as refunded and re-derives status.
func (inv *Invoice) ApplyRefund(amount Money) {
	inv.RefundedAmount += amount
	inv.refreshLedger()
}

// RemainingDue is what can still be paid.
func (inv *Invoice) RemainingDue() Money {
	return inv.TotalAmount - inv.PaidAmount
}

// Refundable is what can still be refunded.
func (inv *Invoice) Refundable() Money {
	return inv.PaidAmount - inv.RefundedAmount
}

// InvoiceLine is a closed record; ItemID links it to an inventory item whose
// stock is deducted on approval.
type InvoiceLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	ItemID      *string         `gorm:"type:text" json:"item_id,omitempty"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"quantity"`
	UnitPrice   Money           `gorm:"not null" json:"unit_price"`
	VATRate     decimal.Decimal `gorm:"type:numeric(5,4);not null" json:"vat_rate"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLine) TableName() string { return "invoice_lines" }

// Payment is append-only.
type Payment struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID  `gorm:"not null;index" json:"invoice_id"`
	Amount    Money         `gorm:"not null" json:"amount"`
	Method    PaymentMethod `gorm:"type:text;not null" json:"method"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "invoice_payments" }

// Refund is append-only.
type Refund struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount    Money        `gorm:"not null" json:"amount"`
	Reason    string       `gorm:"type:text;not null" json:"reason"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Refund) TableName() string { return "invoice_refunds" }

// EkasaReceipt is the fiscal receipt of an invoice; at most one per invoice.
type EkasaReceipt struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID        snowflake.ID `gorm:"not null;uniqueIndex:ux_ekasa_receipts_invoice" json:"invoice_id"`
	InvoiceNumber    string       `gorm:"type:text;not null" json:"invoice_number"`
	State            EkasaStatus  `gorm:"type:text;not null" json:"state"`
	OKP              string       `gorm:"type:text;not null;uniqueIndex:ux_ekasa_receipts_okp" json:"okp"`
	QRCode           string       `gorm:"type:text;not null" json:"qr_code"`
	CashRegisterCode string       `gorm:"type:text;not null" json:"cash_register_code"`
	Total            Money        `gorm:"not null" json:"total"`
	IssuedAt         time.Time    `gorm:"not null" json:"issued_at"`
}

// TableName sets the database table name.
func (EkasaReceipt) TableName() string { return "ekasa_receipts" }

// InvoiceSequence is a named durable counter for invoice numbers.
type InvoiceSequence struct {
	Name      string    `gorm:"primaryKey;type:text"`
	Value     int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
