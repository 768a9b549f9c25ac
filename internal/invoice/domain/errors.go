package domain

import (
	"errors"

	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	"github.com/smallbiznis/vetbill/internal/lock"
)

var (
	ErrInvalidInvoiceID     = errors.New("invalid_invoice_id")
	ErrInvalidLineID        = errors.New("invalid_line_id")
	ErrInvalidClientID      = errors.New("invalid_client_id")
	ErrEmptyLines           = errors.New("empty_lines")
	ErrInvalidDescription   = errors.New("invalid_description")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidUnitPrice     = errors.New("invalid_unit_price")
	ErrInvalidVATRate       = errors.New("invalid_vat_rate")
	ErrInvalidItemID        = errors.New("invalid_item_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidReason        = errors.New("invalid_reason")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrLastLine             = errors.New("cannot_remove_last_line")

	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrLineNotFound    = errors.New("invoice_line_not_found")
	ErrClientNotFound  = errors.New("client_not_found")
	ErrItemNotFound    = inventorydomain.ErrItemNotFound
	ErrReceiptNotFound = errors.New("receipt_not_found")

	ErrInvoiceNotDraft   = errors.New("invoice_not_draft")
	ErrInvoiceIsDraft    = errors.New("invoice_not_approved")
	ErrInvoiceRefunded   = errors.New("invoice_refunded")
	ErrOverPayment       = errors.New("over_payment")
	ErrOverRefund        = errors.New("over_refund")
	ErrAlreadyFiscalized = errors.New("already_fiscalized")
	ErrInsufficientStock = inventorydomain.ErrInsufficientStock
	ErrVersionConflict   = errors.New("invoice_version_conflict")
)

// Kind classifies errors for callers that surface them verbatim.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindValidation        Kind = "ValidationError"
	KindInvalidState      Kind = "InvalidState"
	KindOverPayment       Kind = "OverPayment"
	KindOverRefund        Kind = "OverRefund"
	KindAlreadyFiscalized Kind = "AlreadyFiscalized"
	KindInsufficientStock Kind = "InsufficientStock"
	KindConflict          Kind = "Conflict"
	KindInternal          Kind = "Internal"
)

var kindsByError = []struct {
	err  error
	kind Kind
}{
	{ErrInvoiceNotFound, KindNotFound},
	{ErrLineNotFound, KindNotFound},
	{ErrClientNotFound, KindNotFound},
	{ErrItemNotFound, KindNotFound},
	{ErrReceiptNotFound, KindNotFound},

	{ErrInvalidInvoiceID, KindValidation},
	{ErrInvalidLineID, KindValidation},
	{ErrInvalidClientID, KindValidation},
	{ErrEmptyLines, KindValidation},
	{ErrInvalidDescription, KindValidation},
	{ErrInvalidQuantity, KindValidation},
	{ErrInvalidUnitPrice, KindValidation},
	{ErrInvalidVATRate, KindValidation},
	{ErrInvalidItemID, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidPaymentMethod, KindValidation},
	{ErrInvalidReason, KindValidation},
	{ErrInvalidStatus, KindValidation},
	{ErrInvalidPageToken, KindValidation},
	{ErrLastLine, KindValidation},

	{ErrInvoiceNotDraft, KindInvalidState},
	{ErrInvoiceIsDraft, KindInvalidState},
	{ErrInvoiceRefunded, KindInvalidState},
	{ErrOverPayment, KindOverPayment},
	{ErrOverRefund, KindOverRefund},
	{ErrAlreadyFiscalized, KindAlreadyFiscalized},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrVersionConflict, KindConflict},
	{lock.ErrLockTimeout, KindConflict},
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, candidate := range kindsByError {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}
