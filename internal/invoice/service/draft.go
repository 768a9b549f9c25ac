package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"gorm.io/gorm"
)

const (
	sourceManual    = "manual"
	sourceNoShowFee = "no_show_fee"
)

func (s *Service) CreateDraft(ctx context.Context, req invoicedomain.CreateDraftRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "create_draft", "")
	defer func() { s.finish(ctx, span, "create_draft", err) }()

	inv, err := s.createDraft(ctx, req, sourceManual)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return *inv, nil
}

func (s *Service) createDraft(ctx context.Context, req invoicedomain.CreateDraftRequest, source string) (*invoicedomain.Invoice, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return nil, invoicedomain.ErrInvalidClientID
	}
	exists, err := s.clients.Exists(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, invoicedomain.ErrClientNotFound
	}
	if len(req.Lines) == 0 {
		return nil, invoicedomain.ErrEmptyLines
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate()
	lines, err := s.buildLines(invoiceID, req.Lines, 0, now)
	if err != nil {
		return nil, err
	}

	inv := &invoicedomain.Invoice{
		ID:          invoiceID,
		ClientID:    clientID,
		PetID:       trimOptional(req.PetID),
		Status:      invoicedomain.InvoiceStatusDraft,
		EkasaStatus: invoicedomain.EkasaStatusNotSent,
		Lines:       lines,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	inv.Recalculate()

	numbering := s.billing().Numbering
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.repo.NextNumber(ctx, tx, numbering.Prefix, numbering.Start)
		if err != nil {
			return err
		}
		inv.Number = number
		return s.repo.Insert(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceCreated(ctx, source)
	s.emitAudit(ctx, "invoice.draft_created", inv, map[string]any{
		"source":     source,
		"line_count": len(inv.Lines),
	})
	return inv, nil
}

func (s *Service) UpdateDraft(ctx context.Context, req invoicedomain.UpdateDraftRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "update_draft", req.InvoiceID)
	defer func() { s.finish(ctx, span, "update_draft", err) }()

	return s.editDraft(ctx, "update_draft", req.InvoiceID, func(inv *invoicedomain.Invoice, now time.Time) error {
		if len(req.Lines) == 0 {
			return invoicedomain.ErrEmptyLines
		}
		lines, err := s.buildLines(inv.ID, req.Lines, 0, now)
		if err != nil {
			return err
		}
		inv.Lines = lines
		return nil
	})
}

func (s *Service) AddLine(ctx context.Context, req invoicedomain.AddLineRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "add_line", req.InvoiceID)
	defer func() { s.finish(ctx, span, "add_line", err) }()

	return s.editDraft(ctx, "add_line", req.InvoiceID, func(inv *invoicedomain.Invoice, now time.Time) error {
		lines, err := s.buildLines(inv.ID, []invoicedomain.LineInput{req.Line}, nextPosition(inv.Lines), now)
		if err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, lines...)
		return nil
	})
}

func (s *Service) UpdateLine(ctx context.Context, req invoicedomain.UpdateLineRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "update_line", req.InvoiceID)
	defer func() { s.finish(ctx, span, "update_line", err) }()

	lineID, err := parseLineID(req.LineID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return s.editDraft(ctx, "update_line", req.InvoiceID, func(inv *invoicedomain.Invoice, _ time.Time) error {
		idx := findLine(inv.Lines, lineID)
		if idx < 0 {
			return invoicedomain.ErrLineNotFound
		}
		patched, err := req.Patch.Apply(inv.Lines[idx])
		if err != nil {
			return err
		}
		inv.Lines[idx] = patched
		return nil
	})
}

func (s *Service) RemoveLine(ctx context.Context, req invoicedomain.RemoveLineRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := s.startSpan(ctx, "remove_line", req.InvoiceID)
	defer func() { s.finish(ctx, span, "remove_line", err) }()

	lineID, err := parseLineID(req.LineID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return s.editDraft(ctx, "remove_line", req.InvoiceID, func(inv *invoicedomain.Invoice, _ time.Time) error {
		idx := findLine(inv.Lines, lineID)
		if idx < 0 {
			return invoicedomain.ErrLineNotFound
		}
		if len(inv.Lines) == 1 {
			return invoicedomain.ErrLastLine
		}
		inv.Lines = slices.Delete(inv.Lines, idx, idx+1)
		return nil
	})
}

// editDraft runs a line edit under the invoice lock and recomputes totals.
func (s *Service) editDraft(ctx context.Context, op, invoiceID string, edit func(inv *invoicedomain.Invoice, now time.Time) error) (invoicedomain.Invoice, error) {
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	unlock, err := s.lockInvoice(ctx, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	defer unlock()

	inv, err := s.mutate(ctx, op, id, func(inv *invoicedomain.Invoice, now time.Time) (change, error) {
		if !inv.IsDraft() {
			return change{}, invoicedomain.ErrInvoiceNotDraft
		}
		if err := edit(inv, now); err != nil {
			return change{}, err
		}
		inv.Recalculate()
		return change{lines: true}, nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.emitAudit(ctx, "invoice.draft_updated", inv, map[string]any{
		"operation":  op,
		"line_count": len(inv.Lines),
	})
	return *inv, nil
}

func (s *Service) buildLines(invoiceID snowflake.ID, inputs []invoicedomain.LineInput, firstPosition int, now time.Time) ([]invoicedomain.InvoiceLine, error) {
	lines := make([]invoicedomain.InvoiceLine, 0, len(inputs))
	for i, input := range inputs {
		input = input.Normalize()
		if err := input.Validate(); err != nil {
			return nil, err
		}
		lines = append(lines, invoicedomain.InvoiceLine{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Position:    firstPosition + i,
			ItemID:      input.ItemID,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			VATRate:     input.VATRate,
			CreatedAt:   now,
		})
	}
	return lines, nil
}

func nextPosition(lines []invoicedomain.InvoiceLine) int {
	next := 0
	for _, line := range lines {
		if line.Position >= next {
			next = line.Position + 1
		}
	}
	return next
}

func findLine(lines []invoicedomain.InvoiceLine, id snowflake.ID) int {
	return slices.IndexFunc(lines, func(line invoicedomain.InvoiceLine) bool {
		return line.ID == id
	})
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
