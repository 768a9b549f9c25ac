package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
)

func (s *Service) PostPayment(ctx context.Context, req invoicedomain.PostPaymentRequest) (result invoicedomain.PaymentResult, err error) {
	ctx, span := s.startSpan(ctx, "post_payment", req.InvoiceID)
	defer func() { s.finish(ctx, span, "post_payment", err) }()

	id, err := parseInvoiceID(req.InvoiceID)
	if err != nil {
		return invoicedomain.PaymentResult{}, err
	}
	unlock, err := s.lockInvoice(ctx, id)
	if err != nil {
		return invoicedomain.PaymentResult{}, err
	}
	defer unlock()

	var payment invoicedomain.Payment
	inv, err := s.mutate(ctx, "post_payment", id, func(inv *invoicedomain.Invoice, now time.Time) (change, error) {
		switch inv.Status {
		case invoicedomain.InvoiceStatusDraft:
			return change{}, invoicedomain.ErrInvoiceIsDraft
		case invoicedomain.InvoiceStatusRefunded:
			return change{}, invoicedomain.ErrInvoiceRefunded
		}
		if req.Amount <= 0 {
			return change{}, invoicedomain.ErrInvalidAmount
		}
		if !req.Method.Valid() {
			return change{}, invoicedomain.ErrInvalidPaymentMethod
		}
		if due := inv.RemainingDue(); req.Amount > due {
			return change{}, fmt.Errorf("%w: amount %s exceeds remaining %s", invoicedomain.ErrOverPayment, req.Amount, due)
		}

		payment = invoicedomain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: inv.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			CreatedAt: now,
		}
		inv.ApplyPayment(req.Amount)
		return change{payment: &payment, posting: paymentPosting(&payment)}, nil
	})
	if err != nil {
		return invoicedomain.PaymentResult{}, err
	}

	s.metrics.RecordPayment(ctx, string(payment.Method), payment.Amount.Cents())
	s.emitAudit(ctx, "invoice.payment_posted", inv, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     payment.Amount.String(),
		"method":     string(payment.Method),
	})
	return invoicedomain.PaymentResult{Invoice: *inv, Payment: payment}, nil
}

func (s *Service) Refund(ctx context.Context, req invoicedomain.RefundRequest) (result invoicedomain.RefundResult, err error) {
	ctx, span := s.startSpan(ctx, "refund", req.InvoiceID)
	defer func() { s.finish(ctx, span, "refund", err) }()

	id, err := parseInvoiceID(req.InvoiceID)
	if err != nil {
		return invoicedomain.RefundResult{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	unlock, err := s.lockInvoice(ctx, id)
	if err != nil {
		return invoicedomain.RefundResult{}, err
	}
	defer unlock()

	var refund invoicedomain.Refund
	inv, err := s.mutate(ctx, "refund", id, func(inv *invoicedomain.Invoice, now time.Time) (change, error) {
		if req.Amount <= 0 {
			return change{}, invoicedomain.ErrInvalidAmount
		}
		if reason == "" {
			return change{}, invoicedomain.ErrInvalidReason
		}
		if refundable := inv.Refundable(); req.Amount > refundable {
			return change{}, fmt.Errorf("%w: amount %s exceeds refundable %s", invoicedomain.ErrOverRefund, req.Amount, refundable)
		}

		refund = invoicedomain.Refund{
			ID:        s.genID.Generate(),
			InvoiceID: inv.ID,
			Amount:    req.Amount,
			Reason:    reason,
			CreatedAt: now,
		}
		inv.ApplyRefund(req.Amount)
		return change{refund: &refund, posting: refundPosting(&refund)}, nil
	})
	if err != nil {
		return invoicedomain.RefundResult{}, err
	}

	s.metrics.RecordRefund(ctx)
	s.emitAudit(ctx, "invoice.refunded", inv, map[string]any{
		"refund_id": refund.ID.String(),
		"amount":    refund.Amount.String(),
		"reason":    refund.Reason,
	})
	return invoicedomain.RefundResult{Invoice: *inv, Refund: refund}, nil
}
