package service

import (
	"context"
	"fmt"
	"time"

	fiscaldomain "github.com/smallbiznis/vetbill/internal/fiscal/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
)

// Fiscalize registers the invoice with the cash register. The receipt is
// issued before anything is written, so a failed issuance leaves the invoice
// untouched; the receipt and FISCALIZED are then stored together.
func (s *Service) Fiscalize(ctx context.Context, invoiceID string) (result invoicedomain.FiscalizeResult, err error) {
	ctx, span := s.startSpan(ctx, "fiscalize", invoiceID)
	defer func() { s.finish(ctx, span, "fiscalize", err) }()

	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return invoicedomain.FiscalizeResult{}, err
	}
	unlock, err := s.lockInvoice(ctx, id)
	if err != nil {
		return invoicedomain.FiscalizeResult{}, err
	}
	defer unlock()

	inv, err := s.load(ctx, id)
	if err != nil {
		return invoicedomain.FiscalizeResult{}, err
	}
	if inv.EkasaStatus == invoicedomain.EkasaStatusFiscalized {
		return invoicedomain.FiscalizeResult{}, invoicedomain.ErrAlreadyFiscalized
	}

	issuance, err := s.issuer.Issue(ctx, fiscaldomain.IssueRequest{
		InvoiceNumber: inv.Number,
		Total:         inv.TotalAmount.Decimal(),
		IssuedAt:      s.clock.Now(),
	})
	if err != nil {
		return invoicedomain.FiscalizeResult{}, fmt.Errorf("issue fiscal receipt: %w", err)
	}

	var receipt invoicedomain.EkasaReceipt
	inv, err = s.mutate(ctx, "fiscalize", id, func(inv *invoicedomain.Invoice, _ time.Time) (change, error) {
		if inv.EkasaStatus == invoicedomain.EkasaStatusFiscalized {
			return change{}, invoicedomain.ErrAlreadyFiscalized
		}
		issuedAt := issuance.IssuedAt.UTC()
		receipt = invoicedomain.EkasaReceipt{
			ID:               s.genID.Generate(),
			InvoiceID:        inv.ID,
			InvoiceNumber:    inv.Number,
			State:            invoicedomain.EkasaStatusFiscalized,
			OKP:              issuance.OKP,
			QRCode:           issuance.QRCode,
			CashRegisterCode: issuance.CashRegisterCode,
			Total:            inv.TotalAmount,
			IssuedAt:         issuedAt,
		}
		inv.EkasaStatus = invoicedomain.EkasaStatusFiscalized
		inv.FiscalizedAt = &issuedAt
		return change{receipt: &receipt}, nil
	})
	if err != nil {
		return invoicedomain.FiscalizeResult{}, err
	}

	s.metrics.RecordFiscalized(ctx)
	s.emitAudit(ctx, "invoice.fiscalized", inv, map[string]any{
		"receipt_id":         receipt.ID.String(),
		"okp":                receipt.OKP,
		"cash_register_code": receipt.CashRegisterCode,
	})
	return invoicedomain.FiscalizeResult{Invoice: *inv, Receipt: receipt}, nil
}

func (s *Service) GetReceipt(ctx context.Context, invoiceID string) (invoicedomain.Invoice, invoicedomain.EkasaReceipt, error) {
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.EkasaReceipt{}, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.EkasaReceipt{}, err
	}
	receipt, err := s.repo.FindReceipt(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.EkasaReceipt{}, err
	}
	if receipt == nil {
		return invoicedomain.Invoice{}, invoicedomain.EkasaReceipt{}, invoicedomain.ErrReceiptNotFound
	}
	return *inv, *receipt, nil
}
