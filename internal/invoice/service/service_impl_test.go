package service_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/vetbill/internal/ledger/domain"
	"github.com/smallbiznis/vetbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okpPattern = regexp.MustCompile(`^[0-9A-F]{8}(-[0-9A-F]{8}){4}$`)

func TestCreateDraftScenarioA(t *testing.T) {
	h := newHarness(t)

	inv := h.scenarioA(t)

	assert.Equal(t, "INV-1000", inv.Number)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, invoicedomain.EkasaStatusNotSent, inv.EkasaStatus)
	assert.Equal(t, "90.00", inv.SubtotalAmount.String())
	assert.Equal(t, "18.00", inv.VATAmount.String())
	assert.Equal(t, "108.00", inv.TotalAmount.String())
	assert.Equal(t, "108.00", inv.ReceivableAmount.String())
	require.Len(t, inv.Lines, 2)

	stored, err := h.svc.GetByID(context.Background(), inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, inv.TotalAmount, stored.Invoice.TotalAmount)
	assert.Len(t, stored.Invoice.Lines, 2)
	assert.Empty(t, stored.Payments)
	assert.Nil(t, stored.Receipt)
}

func TestCreateDraftNumbersAreSequential(t *testing.T) {
	h := newHarness(t)

	first := h.scenarioA(t)
	second := h.scenarioA(t)

	assert.Equal(t, "INV-1000", first.Number)
	assert.Equal(t, "INV-1001", second.Number)
}

func TestCreateDraftValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	valid := []invoicedomain.LineInput{lineInput(t, "Consultation", "1", "25", "0.2")}

	tests := []struct {
		name string
		req  invoicedomain.CreateDraftRequest
		kind invoicedomain.Kind
	}{
		{"blank client", invoicedomain.CreateDraftRequest{ClientID: "  ", Lines: valid}, invoicedomain.KindValidation},
		{"unknown client", invoicedomain.CreateDraftRequest{ClientID: "cli_missing", Lines: valid}, invoicedomain.KindNotFound},
		{"unknown client checked before lines", invoicedomain.CreateDraftRequest{ClientID: "cli_missing"}, invoicedomain.KindNotFound},
		{"no lines", invoicedomain.CreateDraftRequest{ClientID: h.clientID}, invoicedomain.KindValidation},
		{"zero quantity", invoicedomain.CreateDraftRequest{ClientID: h.clientID, Lines: []invoicedomain.LineInput{
			lineInput(t, "Consultation", "0", "25", "0.2"),
		}}, invoicedomain.KindValidation},
		{"blank description", invoicedomain.CreateDraftRequest{ClientID: h.clientID, Lines: []invoicedomain.LineInput{
			lineInput(t, " ", "1", "25", "0.2"),
		}}, invoicedomain.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateDraft(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, invoicedomain.KindOf(err))
		})
	}

	list, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)
}

func TestConcurrentCreateDraftAssignsDistinctNumbers(t *testing.T) {
	h := newHarness(t)

	const workers = 8
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := h.svc.CreateDraft(context.Background(), invoicedomain.CreateDraftRequest{
				ClientID: h.clientID,
				Lines:    []invoicedomain.LineInput{lineInput(t, "Consultation", "1", "25", "0.2")},
			})
			if !assert.NoError(t, err) {
				return
			}
			numbers <- inv.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for number := range numbers {
		assert.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, workers)
	for i := 0; i < workers; i++ {
		assert.True(t, seen[fmt.Sprintf("INV-%d", 1000+i)])
	}
}

func TestDraftLineEditsRecomputeTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.scenarioA(t)
	id := inv.ID.String()

	added, err := h.svc.AddLine(ctx, invoicedomain.AddLineRequest{
		InvoiceID: id,
		Line:      lineInput(t, "Vaccine", "1", "10", "0.1"),
	})
	require.NoError(t, err)
	require.Len(t, added.Lines, 3)
	assert.Equal(t, "100.00", added.SubtotalAmount.String())
	assert.Equal(t, "19.00", added.VATAmount.String())
	assert.Equal(t, "119.00", added.TotalAmount.String())
	assert.Equal(t, inv.Version+1, added.Version)

	qty := decimal.NewFromInt(3)
	updated, err := h.svc.UpdateLine(ctx, invoicedomain.UpdateLineRequest{
		InvoiceID: id,
		LineID:    added.Lines[0].ID.String(),
		Patch:     invoicedomain.LinePatch{Quantity: &qty},
	})
	require.NoError(t, err)
	assert.Equal(t, "125.00", updated.SubtotalAmount.String())
	assert.Equal(t, "149.00", updated.TotalAmount.String())

	removed, err := h.svc.RemoveLine(ctx, invoicedomain.RemoveLineRequest{InvoiceID: id, LineID: added.Lines[2].ID.String()})
	require.NoError(t, err)
	require.Len(t, removed.Lines, 2)
	assert.Equal(t, "115.00", removed.SubtotalAmount.String())
	assert.Equal(t, "23.00", removed.VATAmount.String())
	assert.Equal(t, "138.00", removed.TotalAmount.String())
	assert.Equal(t, removed.TotalAmount, removed.ReceivableAmount)

	replaced, err := h.svc.UpdateDraft(ctx, invoicedomain.UpdateDraftRequest{
		InvoiceID: id,
		Lines: []invoicedomain.LineInput{
			lineInput(t, "Syringe", "100", "0.4", "0.2"),
			lineInput(t, "Consultation", "2", "25", "0.2"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, inv.SubtotalAmount, replaced.SubtotalAmount)
	assert.Equal(t, inv.VATAmount, replaced.VATAmount)
	assert.Equal(t, inv.TotalAmount, replaced.TotalAmount)

	stored, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Invoice.Lines, 2)
	assert.Equal(t, "108.00", stored.Invoice.TotalAmount.String())
}

func TestDraftLineEditFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines:    []invoicedomain.LineInput{lineInput(t, "Consultation", "1", "25", "0.2")},
	})
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = h.svc.RemoveLine(ctx, invoicedomain.RemoveLineRequest{InvoiceID: id, LineID: inv.Lines[0].ID.String()})
	assert.ErrorIs(t, err, invoicedomain.ErrLastLine)
	assert.Equal(t, invoicedomain.KindValidation, invoicedomain.KindOf(err))

	_, err = h.svc.RemoveLine(ctx, invoicedomain.RemoveLineRequest{InvoiceID: id, LineID: "42"})
	assert.Equal(t, invoicedomain.KindNotFound, invoicedomain.KindOf(err))

	_, err = h.svc.UpdateDraft(ctx, invoicedomain.UpdateDraftRequest{InvoiceID: id})
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyLines)

	blank := ""
	_, err = h.svc.UpdateLine(ctx, invoicedomain.UpdateLineRequest{
		InvoiceID: id,
		LineID:    inv.Lines[0].ID.String(),
		Patch:     invoicedomain.LinePatch{Description: &blank},
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDescription)

	stored, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, inv.Version, stored.Invoice.Version)
	assert.Equal(t, "Consultation", stored.Invoice.Lines[0].Description)
}

func TestEditsAfterApprovalAreRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()

	_, err := h.svc.AddLine(ctx, invoicedomain.AddLineRequest{InvoiceID: id, Line: lineInput(t, "Extra", "1", "5", "0.2")})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)
	assert.Equal(t, invoicedomain.KindInvalidState, invoicedomain.KindOf(err))

	_, err = h.svc.RemoveLine(ctx, invoicedomain.RemoveLineRequest{InvoiceID: id, LineID: inv.Lines[0].ID.String()})
	assert.Equal(t, invoicedomain.KindInvalidState, invoicedomain.KindOf(err))

	_, err = h.svc.Approve(ctx, id)
	assert.Equal(t, invoicedomain.KindInvalidState, invoicedomain.KindOf(err))

	stored, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Invoice.Lines, 2)
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, stored.Invoice.Status)
}

func TestScenarioBPaymentsAndScenarioCRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, inv.Status)
	require.NotNil(t, inv.ApprovedAt)

	first, err := h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "50"), Method: invoicedomain.PaymentMethodCard})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, first.Invoice.Status)
	assert.Equal(t, "50.00", first.Invoice.PaidAmount.String())
	assert.Equal(t, "58.00", first.Invoice.ReceivableAmount.String())
	assert.Equal(t, inv.ID, first.Payment.InvoiceID)

	second, err := h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "58"), Method: invoicedomain.PaymentMethodCash})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, second.Invoice.Status)
	assert.Equal(t, "108.00", second.Invoice.PaidAmount.String())
	assert.Equal(t, "0.00", second.Invoice.ReceivableAmount.String())

	refund, err := h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "10"), Reason: "Overcharged syringe"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, refund.Invoice.Status)
	assert.Equal(t, "10.00", refund.Invoice.RefundedAmount.String())
	assert.Equal(t, "10.00", refund.Invoice.ReceivableAmount.String())
	assert.Equal(t, "Overcharged syringe", refund.Refund.Reason)

	detail, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, detail.Payments, 2)
	assert.Len(t, detail.Refunds, 1)

	assert.Equal(t, int64(1000), h.balance(t, ledgerdomain.AccountCodeAccountsReceivable))
	assert.Equal(t, int64(9800), h.balance(t, ledgerdomain.AccountCodeCash))
	assert.Equal(t, int64(-9000), h.balance(t, ledgerdomain.AccountCodeRevenue))
	assert.Equal(t, int64(-1800), h.balance(t, ledgerdomain.AccountCodeTaxPayable))
}

func TestScenarioDNoShowFee(t *testing.T) {
	h := newHarness(t)

	inv, err := h.svc.CreateNoShowFeeInvoice(context.Background(), invoicedomain.NoShowFeeRequest{
		ClientID: h.clientID,
		Amount:   money(t, "35"),
	})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.InvoiceStatusApproved, inv.Status)
	assert.Equal(t, "35.00", inv.TotalAmount.String())
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, "No-show fee", inv.Lines[0].Description)
	assert.Nil(t, inv.PetID)

	_, err = h.svc.CreateNoShowFeeInvoice(context.Background(), invoicedomain.NoShowFeeRequest{ClientID: h.clientID})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)
}

func TestScenarioEPaymentOnDraftIsRejected(t *testing.T) {
	h := newHarness(t)
	inv := h.scenarioA(t)

	_, err := h.svc.PostPayment(context.Background(), invoicedomain.PostPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    money(t, "10"),
		Method:    invoicedomain.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.Equal(t, invoicedomain.KindInvalidState, invoicedomain.KindOf(err))
}

func TestPaymentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()

	_, err := h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: 0, Method: invoicedomain.PaymentMethodCash})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "10"), Method: "BITCOIN"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPaymentMethod)

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: "not-an-id", Amount: money(t, "10"), Method: invoicedomain.PaymentMethodCash})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: "12345", Amount: money(t, "10"), Method: invoicedomain.PaymentMethodCash})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestOverPaymentLeavesInvoiceUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()

	_, err := h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "100"), Method: invoicedomain.PaymentMethodCash})
	require.NoError(t, err)

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "8.01"), Method: invoicedomain.PaymentMethodCash})
	assert.ErrorIs(t, err, invoicedomain.ErrOverPayment)
	assert.Equal(t, invoicedomain.KindOverPayment, invoicedomain.KindOf(err))

	detail, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "100.00", detail.Invoice.PaidAmount.String())
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, detail.Invoice.Status)
	assert.Len(t, detail.Payments, 1)
	assert.Equal(t, int64(10000), h.balance(t, ledgerdomain.AccountCodeCash))
}

func TestRefundRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()

	_, err := h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "5"), Reason: "goodwill"})
	assert.ErrorIs(t, err, invoicedomain.ErrOverRefund, "nothing paid yet")

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "50"), Method: invoicedomain.PaymentMethodCard})
	require.NoError(t, err)

	_, err = h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "5"), Reason: "   "})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidReason)
	assert.Equal(t, invoicedomain.KindValidation, invoicedomain.KindOf(err))

	_, err = h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "-5"), Reason: "goodwill"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "50.01"), Reason: "goodwill"})
	assert.Equal(t, invoicedomain.KindOverRefund, invoicedomain.KindOf(err))

	full, err := h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "50"), Reason: "Treatment cancelled"})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusRefunded, full.Invoice.Status)
	assert.Equal(t, "108.00", full.Invoice.ReceivableAmount.String())

	_, err = h.svc.Refund(ctx, invoicedomain.RefundRequest{InvoiceID: id, Amount: money(t, "0.01"), Reason: "again"})
	assert.ErrorIs(t, err, invoicedomain.ErrOverRefund)

	_, err = h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: id, Amount: money(t, "10"), Method: invoicedomain.PaymentMethodCash})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceRefunded)
	assert.Equal(t, invoicedomain.KindInvalidState, invoicedomain.KindOf(err))

	detail, err := h.svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "50.00", detail.Invoice.RefundedAmount.String())
	assert.Len(t, detail.Refunds, 1)
}

func TestConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	h := newHarness(t)
	inv := h.approved(t)
	id := inv.ID.String()

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.PostPayment(context.Background(), invoicedomain.PostPaymentRequest{
				InvoiceID: id,
				Amount:    money(t, "20"),
				Method:    invoicedomain.PaymentMethodCard,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, invoicedomain.ErrOverPayment):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, rejected)

	detail, err := h.svc.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "100.00", detail.Invoice.PaidAmount.String())
	assert.Len(t, detail.Payments, 5)
}

func TestVersionConflictIsRetriedWithoutDoublePosting(t *testing.T) {
	conflicts := &conflictingRepo{}
	h := newHarness(t, withRepo(func(r invoicedomain.Repository) invoicedomain.Repository {
		conflicts.Repository = r
		return conflicts
	}))
	inv := h.approved(t)

	conflicts.remaining.Store(2)
	result, err := h.svc.PostPayment(context.Background(), invoicedomain.PostPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    money(t, "50"),
		Method:    invoicedomain.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00", result.Invoice.PaidAmount.String())

	detail, err := h.svc.GetByID(context.Background(), inv.ID.String())
	require.NoError(t, err)
	assert.Len(t, detail.Payments, 1)
	assert.Equal(t, int64(5000), h.balance(t, ledgerdomain.AccountCodeCash))
}

func TestPersistentConflictSurfacesAsConflict(t *testing.T) {
	conflicts := &conflictingRepo{}
	h := newHarness(t, withRepo(func(r invoicedomain.Repository) invoicedomain.Repository {
		conflicts.Repository = r
		return conflicts
	}))
	inv := h.approved(t)

	conflicts.remaining.Store(100)
	_, err := h.svc.PostPayment(context.Background(), invoicedomain.PostPaymentRequest{
		InvoiceID: inv.ID.String(),
		Amount:    money(t, "50"),
		Method:    invoicedomain.PaymentMethodCash,
	})
	require.ErrorIs(t, err, invoicedomain.ErrVersionConflict)
	assert.Equal(t, invoicedomain.KindConflict, invoicedomain.KindOf(err))

	conflicts.remaining.Store(0)
	detail, err := h.svc.GetByID(context.Background(), inv.ID.String())
	require.NoError(t, err)
	assert.Empty(t, detail.Payments)
	assert.Equal(t, int64(0), h.balance(t, ledgerdomain.AccountCodeCash))
}

func createItem(t *testing.T, h *harness, id, name, stock, min string) {
	t.Helper()
	_, err := h.inventory.Create(context.Background(), inventorydomain.CreateItemRequest{
		ID:          id,
		Name:        name,
		StockOnHand: decimal.RequireFromString(stock),
		MinStock:    decimal.RequireFromString(min),
	})
	require.NoError(t, err)
}

func TestApproveDeductsStockAndReportsLowStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createItem(t, h, "amoxicillin", "Amoxicillin 250mg", "10", "2")
	createItem(t, h, "bandage", "Bandage", "50", "5")

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			itemLine(t, "amoxicillin", "Amoxicillin", "4", "3.5"),
			itemLine(t, "bandage", "Bandage", "2", "1.2"),
			itemLine(t, "amoxicillin", "Amoxicillin refill", "5", "3.5"),
			lineInput(t, "Consultation", "1", "25", "0.2"),
		},
	})
	require.NoError(t, err)

	result, err := h.svc.Approve(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, result.Invoice.Status)
	assert.Equal(t, []string{"Amoxicillin 250mg"}, result.LowStockItemNames)

	assert.True(t, decimal.NewFromInt(1).Equal(h.stock(t, "amoxicillin")))
	assert.True(t, decimal.NewFromInt(48).Equal(h.stock(t, "bandage")))
	assert.Equal(t, result.Invoice.TotalAmount.Cents(), h.balance(t, ledgerdomain.AccountCodeAccountsReceivable))
}

func TestApproveIsAllOrNothingOnInsufficientStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createItem(t, h, "amoxicillin", "Amoxicillin 250mg", "10", "2")
	createItem(t, h, "bandage", "Bandage", "1", "0")

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			itemLine(t, "amoxicillin", "Amoxicillin", "4", "3.5"),
			itemLine(t, "bandage", "Bandage", "3", "1.2"),
		},
	})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, inv.ID.String())
	require.ErrorIs(t, err, invoicedomain.ErrInsufficientStock)
	assert.Equal(t, invoicedomain.KindInsufficientStock, invoicedomain.KindOf(err))

	assert.True(t, decimal.NewFromInt(10).Equal(h.stock(t, "amoxicillin")))
	assert.True(t, decimal.NewFromInt(1).Equal(h.stock(t, "bandage")))

	detail, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, detail.Invoice.Status)
	assert.Nil(t, detail.Invoice.ApprovedAt)
	assert.Equal(t, int64(0), h.balance(t, ledgerdomain.AccountCodeAccountsReceivable))
}

func TestApproveWithUnknownItemIsNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines:    []invoicedomain.LineInput{itemLine(t, "ghost", "Unknown", "1", "5")},
	})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrItemNotFound)
	assert.Equal(t, invoicedomain.KindNotFound, invoicedomain.KindOf(err))
}

func TestApproveRestoresStockWhenInvoiceWriteFails(t *testing.T) {
	conflicts := &conflictingRepo{}
	h := newHarness(t, withRepo(func(r invoicedomain.Repository) invoicedomain.Repository {
		conflicts.Repository = r
		return conflicts
	}))
	ctx := context.Background()
	createItem(t, h, "amoxicillin", "Amoxicillin 250mg", "10", "2")

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines:    []invoicedomain.LineInput{itemLine(t, "amoxicillin", "Amoxicillin", "4", "3.5")},
	})
	require.NoError(t, err)

	conflicts.remaining.Store(100)
	_, err = h.svc.Approve(ctx, inv.ID.String())
	require.ErrorIs(t, err, invoicedomain.ErrVersionConflict)
	assert.True(t, decimal.NewFromInt(10).Equal(h.stock(t, "amoxicillin")))

	conflicts.remaining.Store(0)
	detail, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, detail.Invoice.Status)
}

func TestApproveRestoresStockWhenInventoryFails(t *testing.T) {
	failing := &failingInventory{failItem: "bandage"}
	h := newHarness(t, withInventory(func(inv invoicedomain.InventoryLedger) invoicedomain.InventoryLedger {
		failing.InventoryLedger = inv
		return failing
	}))
	ctx := context.Background()
	createItem(t, h, "amoxicillin", "Amoxicillin 250mg", "10", "2")
	createItem(t, h, "bandage", "Bandage", "10", "0")

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			itemLine(t, "bandage", "Bandage", "1", "1.2"),
			itemLine(t, "amoxicillin", "Amoxicillin", "4", "3.5"),
		},
	})
	require.NoError(t, err)

	_, err = h.svc.Approve(ctx, inv.ID.String())
	require.Error(t, err)
	assert.Equal(t, invoicedomain.KindInternal, invoicedomain.KindOf(err))
	assert.True(t, decimal.NewFromInt(10).Equal(h.stock(t, "amoxicillin")))
	assert.True(t, decimal.NewFromInt(10).Equal(h.stock(t, "bandage")))
}

func TestFiscalizeOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	id := inv.ID.String()

	result, err := h.svc.Fiscalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EkasaStatusFiscalized, result.Invoice.EkasaStatus)
	require.NotNil(t, result.Invoice.FiscalizedAt)
	assert.Regexp(t, okpPattern, result.Receipt.OKP)
	assert.Equal(t, "QR:INV-1000:108.00:"+result.Receipt.OKP, result.Receipt.QRCode)
	assert.Equal(t, "88812345678900001", result.Receipt.CashRegisterCode)
	assert.Equal(t, inv.TotalAmount, result.Receipt.Total)

	_, err = h.svc.Fiscalize(ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyFiscalized)
	assert.Equal(t, invoicedomain.KindAlreadyFiscalized, invoicedomain.KindOf(err))

	var receipts int64
	require.NoError(t, h.db.Table("ekasa_receipts").Where("invoice_id = ?", inv.ID).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts)

	stored, receipt, err := h.svc.GetReceipt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, result.Receipt.OKP, receipt.OKP)
	assert.Equal(t, invoicedomain.EkasaStatusFiscalized, stored.EkasaStatus)
}

func TestFailedIssuanceLeavesInvoiceUnchanged(t *testing.T) {
	h := newHarness(t, withIssuer(failingIssuer{}))
	ctx := context.Background()
	inv := h.approved(t)

	_, err := h.svc.Fiscalize(ctx, inv.ID.String())
	require.Error(t, err)

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.EkasaStatusNotSent, stored.Invoice.EkasaStatus)
	assert.Equal(t, inv.Version, stored.Invoice.Version)
	assert.Nil(t, stored.Invoice.FiscalizedAt)
	assert.Nil(t, stored.Receipt)
}

func TestGetReceiptBeforeFiscalization(t *testing.T) {
	h := newHarness(t)
	inv := h.approved(t)

	_, _, err := h.svc.GetReceipt(context.Background(), inv.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrReceiptNotFound)
}

func TestListFiltersAndPages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.approved(t)
	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Minute)
		h.scenarioA(t)
	}

	byStatus, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "approved"})
	require.NoError(t, err)
	require.Len(t, byStatus.Invoices, 1)
	assert.Equal(t, approved.ID, byStatus.Invoices[0].ID)

	first, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, approved.ID, second.Invoices[0].ID)

	_, err = h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "VOID"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	_, err = h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPageToken)
}

func TestMutationsAreAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.approved(t)
	_, err := h.svc.PostPayment(ctx, invoicedomain.PostPaymentRequest{InvoiceID: inv.ID.String(), Amount: money(t, "8"), Method: invoicedomain.PaymentMethodInsurance})
	require.NoError(t, err)

	logs, err := h.audit.List(ctx, auditdomain.ListAuditLogRequest{TargetType: "invoice", TargetID: inv.ID.String()})
	require.NoError(t, err)

	actions := make([]string, 0, len(logs.AuditLogs))
	for _, entry := range logs.AuditLogs {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []string{"invoice.draft_created", "invoice.approved", "invoice.payment_posted"}, actions)
}

func TestStoredLinesRecomputeToStoredTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			lineInput(t, "Ringer's solution", "1.255", "3.33", "0.0525"),
			lineInput(t, "Suture", "0.5", "0.01", "0.2"),
		},
	})
	require.NoError(t, err)

	stored, err := h.svc.GetByID(ctx, inv.ID.String())
	require.NoError(t, err)
	recomputed := invoicedomain.ComputeTotals(stored.Invoice.Lines)
	assert.Equal(t, stored.Invoice.SubtotalAmount, recomputed.Subtotal)
	assert.Equal(t, stored.Invoice.VATAmount, recomputed.VATTotal)
	assert.Equal(t, stored.Invoice.TotalAmount, recomputed.Total)
	assert.Equal(t, inv.TotalAmount, stored.Invoice.TotalAmount)

	_, err = h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines:    []invoicedomain.LineInput{lineInput(t, "Suture", "0.50000000000000001", "0.01", "0.2")},
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)

	vat := decimal.RequireFromString("0.20001")
	_, err = h.svc.UpdateLine(ctx, invoicedomain.UpdateLineRequest{
		InvoiceID: inv.ID.String(),
		LineID:    stored.Invoice.Lines[0].ID.String(),
		Patch:     invoicedomain.LinePatch{VATRate: &vat},
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidVATRate)
}

func TestConcurrentApprovalsShareScarceStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createItem(t, h, "gauze", "Gauze", "5", "0")
	createItem(t, h, "syringe", "Syringe", "100", "0")

	first, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			itemLine(t, "gauze", "Gauze", "3", "1"),
			itemLine(t, "syringe", "Syringe", "10", "0.4"),
		},
	})
	require.NoError(t, err)
	second, err := h.svc.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		ClientID: h.clientID,
		Lines: []invoicedomain.LineInput{
			itemLine(t, "syringe", "Syringe", "10", "0.4"),
			itemLine(t, "gauze", "Gauze", "3", "1"),
		},
	})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{first.ID.String(), second.ID.String()} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.svc.Approve(ctx, id)
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, invoicedomain.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, decimal.NewFromInt(2).Equal(h.stock(t, "gauze")), h.stock(t, "gauze").String())
	assert.True(t, decimal.NewFromInt(90).Equal(h.stock(t, "syringe")), h.stock(t, "syringe").String())
}
