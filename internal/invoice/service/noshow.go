package service

import (
	"context"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"go.uber.org/zap"
)

// CreateNoShowFeeInvoice bills a missed appointment: a single-line draft that
// is approved straight away.
func (s *Service) CreateNoShowFeeInvoice(ctx context.Context, req invoicedomain.NoShowFeeRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "no_show_fee", "")
	defer func() { s.finish(ctx, span, "no_show_fee", err) }()

	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	fee := s.billing().NoShowFee
	draft, err := s.createDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: req.ClientID,
		PetID:    req.PetID,
		Lines: []invoicedomain.LineInput{{
			Description: fee.Description,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   req.Amount,
			VATRate:     fee.VAT(),
		}},
	}, sourceNoShowFee)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	approved, err := s.approve(ctx, draft.ID.String())
	if err != nil {
		s.log.Warn("no-show fee invoice left in draft",
			zap.String("invoice_id", draft.ID.String()),
			zap.Error(err),
		)
		return invoicedomain.Invoice{}, err
	}

	s.metrics.RecordInvoiceApproved(ctx)
	s.emitAudit(ctx, "invoice.no_show_fee_created", approved, map[string]any{
		"amount": req.Amount.String(),
	})
	return *approved, nil
}
