package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceColumns = `id, number, client_id, pet_id, status, ekasa_status,
	subtotal_amount, vat_amount, total_amount, paid_amount, refunded_amount, receivable_amount,
	version, approved_at, fiscalized_at, created_at, updated_at`

const lineColumns = `id, invoice_id, position, item_id, description, quantity, unit_price, vat_rate, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) NextNumber(ctx context.Context, db *gorm.DB, prefix string, start int64) (string, error) {
	now := time.Now().UTC()
	seed := domain.InvoiceSequence{Name: prefix, Value: start - 1, UpdatedAt: now}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return "", fmt.Errorf("seed invoice sequence: %w", err)
	}

	if err := db.WithContext(ctx).Exec(
		`UPDATE invoice_sequences SET value = value + 1, updated_at = ? WHERE name = ?`,
		now,
		prefix,
	).Error; err != nil {
		return "", fmt.Errorf("advance invoice sequence: %w", err)
	}

	var value int64
	if err := db.WithContext(ctx).Raw(
		`SELECT value FROM invoice_sequences WHERE name = ?`,
		prefix,
	).Scan(&value).Error; err != nil {
		return "", fmt.Errorf("read invoice sequence: %w", err)
	}
	return fmt.Sprintf("%s%d", prefix, value), nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Number,
		invoice.ClientID,
		invoice.PetID,
		invoice.Status,
		invoice.EkasaStatus,
		invoice.SubtotalAmount,
		invoice.VATAmount,
		invoice.TotalAmount,
		invoice.PaidAmount,
		invoice.RefundedAmount,
		invoice.ReceivableAmount,
		invoice.Version,
		invoice.ApprovedAt,
		invoice.FiscalizedAt,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error; err != nil {
		return err
	}
	return insertLines(ctx, db, invoice.Lines)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoices []domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}

	invoice := &invoices[0]
	lines, err := loadLines(ctx, db, []snowflake.ID{invoice.ID})
	if err != nil {
		return nil, err
	}
	invoice.Lines = lines[invoice.ID]
	return invoice, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedVersion int64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			status = ?, ekasa_status = ?,
			subtotal_amount = ?, vat_amount = ?, total_amount = ?,
			paid_amount = ?, refunded_amount = ?, receivable_amount = ?,
			approved_at = ?, fiscalized_at = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		invoice.Status,
		invoice.EkasaStatus,
		invoice.SubtotalAmount,
		invoice.VATAmount,
		invoice.TotalAmount,
		invoice.PaidAmount,
		invoice.RefundedAmount,
		invoice.ReceivableAmount,
		invoice.ApprovedAt,
		invoice.FiscalizedAt,
		invoice.Version,
		invoice.UpdatedAt,
		invoice.ID,
		expectedVersion,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, lines []domain.InvoiceLine) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_lines WHERE invoice_id = ?`,
		invoiceID,
	).Error; err != nil {
		return err
	}
	return insertLines(ctx, db, lines)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ClientID != "" {
		stmt = stmt.Where("client_id = ?", filter.ClientID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	ids := make([]snowflake.ID, 0, len(invoices))
	for _, invoice := range invoices {
		ids = append(ids, invoice.ID)
	}
	lines, err := loadLines(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for _, invoice := range invoices {
		invoice.Lines = lines[invoice.ID]
	}
	return invoices, nil
}

func (r *repo) ListOpenReceivables(ctx context.Context, db *gorm.DB) ([]domain.ReceivableRow, error) {
	var rows []domain.ReceivableRow
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, receivable_amount, created_at
		 FROM invoices
		 WHERE receivable_amount > 0
		 ORDER BY created_at ASC, id ASC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_payments (id, invoice_id, amount, method, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.Amount,
		payment.Method,
		payment.CreatedAt,
	).Error
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, amount, method, created_at
		 FROM invoice_payments WHERE invoice_id = ? ORDER BY created_at ASC, id ASC`,
		invoiceID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_refunds (id, invoice_id, amount, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		refund.ID,
		refund.InvoiceID,
		refund.Amount,
		refund.Reason,
		refund.CreatedAt,
	).Error
}

func (r *repo) ListRefunds(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Refund, error) {
	var refunds []domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, amount, reason, created_at
		 FROM invoice_refunds WHERE invoice_id = ? ORDER BY created_at ASC, id ASC`,
		invoiceID,
	).Scan(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

func (r *repo) InsertReceipt(ctx context.Context, db *gorm.DB, receipt *domain.EkasaReceipt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ekasa_receipts (
			id, invoice_id, invoice_number, state, okp, qr_code, cash_register_code, total, issued_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID,
		receipt.InvoiceID,
		receipt.InvoiceNumber,
		receipt.State,
		receipt.OKP,
		receipt.QRCode,
		receipt.CashRegisterCode,
		receipt.Total,
		receipt.IssuedAt,
	).Error
}

func (r *repo) FindReceipt(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (*domain.EkasaReceipt, error) {
	var receipts []domain.EkasaReceipt
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, invoice_number, state, okp, qr_code, cash_register_code, total, issued_at
		 FROM ekasa_receipts WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&receipts).Error
	if err != nil {
		return nil, err
	}
	if len(receipts) == 0 {
		return nil, nil
	}
	return &receipts[0], nil
}

func insertLines(ctx context.Context, db *gorm.DB, lines []domain.InvoiceLine) error {
	for _, line := range lines {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_lines (`+lineColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.InvoiceID,
			line.Position,
			line.ItemID,
			line.Description,
			line.Quantity,
			line.UnitPrice,
			line.VATRate,
			line.CreatedAt,
		).Error; err != nil {
			return fmt.Errorf("insert invoice line: %w", err)
		}
	}
	return nil
}

func loadLines(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) (map[snowflake.ID][]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+` FROM invoice_lines
		 WHERE invoice_id IN ? ORDER BY invoice_id, position ASC, id ASC`,
		invoiceIDs,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}

	grouped := make(map[snowflake.ID][]domain.InvoiceLine, len(invoiceIDs))
	for _, line := range lines {
		grouped[line.InvoiceID] = append(grouped[line.InvoiceID], line)
	}
	return grouped, nil
}
