package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   InvoiceStatus
	ClientID string
	Cursor   *ListCursor
	Limit    int
}

type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ReceivableRow is the projection read by receivables analytics.
type ReceivableRow struct {
	ID               snowflake.ID `json:"id"`
	Number           string       `json:"number"`
	ReceivableAmount Money        `json:"receivable_amount"`
	CreatedAt        time.Time    `json:"created_at"`
}

type Repository interface {
	// NextNumber increments the named sequence inside db and returns the
	// formatted number. The first value is start.
	NextNumber(ctx context.Context, db *gorm.DB, prefix string, start int64) (string, error)
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// Update writes the mutable columns only when the stored version still
	// equals expectedVersion; otherwise it returns ErrVersionConflict.
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) error
	ReplaceLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, lines []InvoiceLine) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	ListOpenReceivables(ctx context.Context, db *gorm.DB) ([]ReceivableRow, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	InsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) error
	ListRefunds(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Refund, error)
	InsertReceipt(ctx context.Context, db *gorm.DB, receipt *EkasaReceipt) error
	FindReceipt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*EkasaReceipt, error)
}
