package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/pkg/db/pagination"
)

func (s *Service) GetByID(ctx context.Context, invoiceID string) (invoicedomain.InvoiceDetail, error) {
	id, err := parseInvoiceID(invoiceID)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	inv, err := s.load(ctx, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	payments, err := s.repo.ListPayments(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	refunds, err := s.repo.ListRefunds(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	receipt, err := s.repo.FindReceipt(ctx, s.db, id)
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	return invoicedomain.InvoiceDetail{
		Invoice:  *inv,
		Payments: payments,
		Refunds:  refunds,
		Receipt:  receipt,
	}, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := invoicedomain.ListFilter{
		ClientID: strings.TrimSpace(req.ClientID),
		Limit:    req.Limit(),
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = invoicedomain.InvoiceStatus(status)
		if !filter.Status.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
	}
	if strings.TrimSpace(req.PageToken) != "" {
		cursor, err := decodeListCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := invoicedomain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeListCursor(token string) (*invoicedomain.ListCursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, invoicedomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, invoicedomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, invoicedomain.ErrInvalidPageToken
	}
	return &invoicedomain.ListCursor{ID: id, CreatedAt: createdAt}, nil
}
