package domain

import (
	"context"

	"github.com/shopspring/decimal"
	fiscaldomain "github.com/smallbiznis/vetbill/internal/fiscal/domain"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	"github.com/smallbiznis/vetbill/pkg/db/pagination"
)

// ClientDirectory answers whether a client may be invoiced.
type ClientDirectory interface {
	Exists(ctx context.Context, clientID string) (bool, error)
}

// InventoryLedger adjusts stock for invoice lines that reference an item.
type InventoryLedger interface {
	Deduct(ctx context.Context, itemID string, delta decimal.Decimal) (inventorydomain.Item, error)
	LowStockItems(ctx context.Context) ([]inventorydomain.Item, error)
}

// ReceiptIssuer produces the fiscal codes of a receipt.
type ReceiptIssuer interface {
	Issue(ctx context.Context, req fiscaldomain.IssueRequest) (fiscaldomain.Issuance, error)
}

type CreateDraftRequest struct {
	ClientID string      `json:"client_id"`
	PetID    *string     `json:"pet_id,omitempty"`
	Lines    []LineInput `json:"lines"`
}

type UpdateDraftRequest struct {
	InvoiceID string      `json:"-"`
	Lines     []LineInput `json:"lines"`
}

type AddLineRequest struct {
	InvoiceID string    `json:"-"`
	Line      LineInput `json:"line"`
}

type UpdateLineRequest struct {
	InvoiceID string    `json:"-"`
	LineID    string    `json:"-"`
	Patch     LinePatch `json:"patch"`
}

type RemoveLineRequest struct {
	InvoiceID string
	LineID    string
}

type PostPaymentRequest struct {
	InvoiceID string        `json:"-"`
	Amount    Money         `json:"amount"`
	Method    PaymentMethod `json:"method"`
}

type RefundRequest struct {
	InvoiceID string `json:"-"`
	Amount    Money  `json:"amount"`
	Reason    string `json:"reason"`
}

type NoShowFeeRequest struct {
	ClientID string  `json:"client_id"`
	PetID    *string `json:"pet_id,omitempty"`
	Amount   Money   `json:"amount"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status   string `form:"status"`
	ClientID string `form:"client_id"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type ApproveResult struct {
	Invoice           Invoice  `json:"invoice"`
	LowStockItemNames []string `json:"low_stock_item_names"`
}

type PaymentResult struct {
	Invoice Invoice `json:"invoice"`
	Payment Payment `json:"payment"`
}

type RefundResult struct {
	Invoice Invoice `json:"invoice"`
	Refund  Refund  `json:"refund"`
}

type FiscalizeResult struct {
	Invoice Invoice      `json:"invoice"`
	Receipt EkasaReceipt `json:"receipt"`
}

// InvoiceDetail is an invoice with everything recorded against it.
type InvoiceDetail struct {
	Invoice  Invoice       `json:"invoice"`
	Payments []Payment     `json:"payments"`
	Refunds  []Refund      `json:"refunds"`
	Receipt  *EkasaReceipt `json:"receipt,omitempty"`
}

// Service is the invoice lifecycle. Every mutation on one invoice is
// serialized and leaves the invoice unchanged when it fails.
type Service interface {
	CreateDraft(ctx context.Context, req CreateDraftRequest) (Invoice, error)
	UpdateDraft(ctx context.Context, req UpdateDraftRequest) (Invoice, error)
	AddLine(ctx context.Context, req AddLineRequest) (Invoice, error)
	UpdateLine(ctx context.Context, req UpdateLineRequest) (Invoice, error)
	RemoveLine(ctx context.Context, req RemoveLineRequest) (Invoice, error)
	Approve(ctx context.Context, invoiceID string) (ApproveResult, error)
	PostPayment(ctx context.Context, req PostPaymentRequest) (PaymentResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	Fiscalize(ctx context.Context, invoiceID string) (FiscalizeResult, error)
	CreateNoShowFeeInvoice(ctx context.Context, req NoShowFeeRequest) (Invoice, error)

	GetByID(ctx context.Context, invoiceID string) (InvoiceDetail, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetReceipt(ctx context.Context, invoiceID string) (Invoice, EkasaReceipt, error)
}
