package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/internal/lock"
	"go.uber.org/zap"
)

// stockDeduction is the total quantity of one item consumed by an invoice.
type stockDeduction struct {
	itemID   string
	quantity decimal.Decimal
}

// Approve freezes a draft. Stock for every item line is deducted under the
// item locks; if any deduction or the invoice write fails, the deductions
// already made are put back before returning.
func (s *Service) Approve(ctx context.Context, invoiceID string) (result invoicedomain.ApproveResult, err error) {
	ctx, span := s.startSpan(ctx, "approve", invoiceID)
	defer func() { s.finish(ctx, span, "approve", err) }()

	inv, err := s.approve(ctx, invoiceID)
	if err != nil {
		return invoicedomain.ApproveResult{}, err
	}

	lowStock := s.lowStockNames(ctx)
	s.metrics.RecordInvoiceApproved(ctx)
	s.emitAudit(ctx, "invoice.approved", inv, map[string]any{
		"subtotal":  inv.SubtotalAmount.String(),
		"vat_total": inv.VATAmount.String(),
	})
	return invoicedomain.ApproveResult{Invoice: *inv, LowStockItemNames: lowStock}, nil
}

func (s *Service) approve(ctx context.Context, invoiceID string) (*invoicedomain.Invoice, error) {
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.retryOnConflict(ctx, "approve", func() (*invoicedomain.Invoice, error) {
		inv, err := s.load(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !inv.IsDraft() {
			return nil, backoff.Permanent(invoicedomain.ErrInvoiceNotDraft)
		}
		expected := inv.Version

		deductions := aggregateDeductions(inv.Lines)
		keys := make([]string, 0, len(deductions))
		for _, d := range deductions {
			keys = append(keys, itemLockKey(d.itemID))
		}
		releaseItems, err := lock.LockAll(ctx, s.locker, keys)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		defer releaseItems()

		applied, err := s.deductStock(ctx, deductions)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		now := s.clock.Now()
		inv.MarkApproved(now)
		if err := s.persist(ctx, inv, expected, now, change{posting: approvalPosting(inv, now)}); err != nil {
			s.restoreStock(ctx, applied)
			return nil, s.retryable(ctx, "approve", err)
		}
		return inv, nil
	})
}

// aggregateDeductions sums line quantities per item, ordered by item id.
func aggregateDeductions(lines []invoicedomain.InvoiceLine) []stockDeduction {
	totals := make(map[string]decimal.Decimal)
	for _, line := range lines {
		if line.ItemID == nil {
			continue
		}
		totals[*line.ItemID] = totals[*line.ItemID].Add(line.Quantity)
	}

	deductions := make([]stockDeduction, 0, len(totals))
	for itemID, quantity := range totals {
		deductions = append(deductions, stockDeduction{itemID: itemID, quantity: quantity})
	}
	slices.SortFunc(deductions, func(a, b stockDeduction) int {
		switch {
		case a.itemID < b.itemID:
			return -1
		case a.itemID > b.itemID:
			return 1
		}
		return 0
	})
	return deductions
}

// deductStock applies every deduction or none of them.
func (s *Service) deductStock(ctx context.Context, deductions []stockDeduction) ([]stockDeduction, error) {
	applied := make([]stockDeduction, 0, len(deductions))
	for _, d := range deductions {
		if _, err := s.inventory.Deduct(ctx, d.itemID, d.quantity.Neg()); err != nil {
			s.restoreStock(ctx, applied)
			if errors.Is(err, invoicedomain.ErrInsufficientStock) || errors.Is(err, invoicedomain.ErrItemNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("deduct stock for item %s: %w", d.itemID, err)
		}
		applied = append(applied, d)
	}
	return applied, nil
}

func (s *Service) restoreStock(ctx context.Context, applied []stockDeduction) {
	ctx = context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		if _, err := s.inventory.Deduct(ctx, d.itemID, d.quantity); err != nil {
			s.log.Error("failed to restore stock after aborted approval",
				zap.String("item_id", d.itemID),
				zap.String("quantity", d.quantity.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) lowStockNames(ctx context.Context) []string {
	items, err := s.inventory.LowStockItems(ctx)
	if err != nil {
		s.log.Warn("failed to load low stock items", zap.Error(err))
		return []string{}
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}
