package domain

// InvoiceStatus is the payment axis of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusApproved      InvoiceStatus = "APPROVED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusRefunded      InvoiceStatus = "REFUNDED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusApproved, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusRefunded:
		return true
	}
	return false
}

// EkasaStatus is the fiscal axis of an invoice. It only moves forward.
type EkasaStatus string

const (
	EkasaStatusNotSent    EkasaStatus = "NOT_SENT"
	EkasaStatusSent       EkasaStatus = "SENT"
	EkasaStatusFiscalized EkasaStatus = "FISCALIZED"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodInsurance    PaymentMethod = "INSURANCE"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodInsurance:
		return true
	}
	return false
}

// DeriveStatus is the only place the payment status is decided. The refund
// override is applied last.
func DeriveStatus(paid, refunded, total Money, wasApproved bool) InvoiceStatus {
	var status InvoiceStatus
	switch {
	case paid == 0 && !wasApproved:
		status = InvoiceStatusDraft
	case paid == 0:
		status = InvoiceStatusApproved
	case paid < total:
		status = InvoiceStatusPartiallyPaid
	default:
		status = InvoiceStatusPaid
	}

	if refunded > 0 && refunded >= paid {
		status = InvoiceStatusRefunded
	}
	return status
}
