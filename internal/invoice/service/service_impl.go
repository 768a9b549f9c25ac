package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/config"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/vetbill/internal/ledger/domain"
	"github.com/smallbiznis/vetbill/internal/lock"
	obsmetrics "github.com/smallbiznis/vetbill/internal/observability/metrics"
	"github.com/smallbiznis/vetbill/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "vetbill/invoice"

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       invoicedomain.Repository
	Clients    invoicedomain.ClientDirectory
	Inventory  invoicedomain.InventoryLedger
	Issuer     invoicedomain.ReceiptIssuer
	Locker     lock.Locker
	LedgerSvc  ledgerdomain.Service
	BillingCfg *config.BillingConfigHolder
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       invoicedomain.Repository
	clients    invoicedomain.ClientDirectory
	inventory  invoicedomain.InventoryLedger
	issuer     invoicedomain.ReceiptIssuer
	locker     lock.Locker
	ledgerSvc  ledgerdomain.Service
	billingCfg *config.BillingConfigHolder
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		repo:       p.Repo,
		clients:    p.Clients,
		inventory:  p.Inventory,
		issuer:     p.Issuer,
		locker:     p.Locker,
		ledgerSvc:  p.LedgerSvc,
		billingCfg: p.BillingCfg,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		tracer:     otel.Tracer(tracerName),
	}
}

// change lists what a mutation writes next to the invoice row.
type change struct {
	lines   bool
	payment *invoicedomain.Payment
	refund  *invoicedomain.Refund
	receipt *invoicedomain.EkasaReceipt
	posting *ledgerPosting
}

// mutation edits inv in memory. Returning an error leaves the stored invoice
// untouched.
type mutation func(inv *invoicedomain.Invoice, now time.Time) (change, error)

// mutate applies fn to a fresh copy of the invoice and stores it with a
// version check. The caller must hold the invoice lock; a conflict can still
// happen against a writer in another process and is retried from a new read.
func (s *Service) mutate(ctx context.Context, op string, id snowflake.ID, fn mutation) (*invoicedomain.Invoice, error) {
	return s.retryOnConflict(ctx, op, func() (*invoicedomain.Invoice, error) {
		inv, err := s.load(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		expected := inv.Version
		now := s.clock.Now()

		ch, err := fn(inv, now)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := s.persist(ctx, inv, expected, now, ch); err != nil {
			return nil, s.retryable(ctx, op, err)
		}
		return inv, nil
	})
}

// retryable keeps version conflicts retryable and stops on anything else.
func (s *Service) retryable(ctx context.Context, op string, err error) error {
	if errors.Is(err, invoicedomain.ErrVersionConflict) {
		s.metrics.RecordVersionConflict(ctx, op)
		return err
	}
	return backoff.Permanent(err)
}

func (s *Service) retryOnConflict(ctx context.Context, op string, attempt func() (*invoicedomain.Invoice, error)) (*invoicedomain.Invoice, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxAttempts()),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Debug("retrying invoice mutation",
				zap.String("operation", op),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
}

func (s *Service) maxAttempts() uint {
	if s.billingCfg == nil {
		return config.DefaultBillingConfig().Concurrency.MaxAttempts
	}
	if attempts := s.billingCfg.Get().Concurrency.MaxAttempts; attempts > 0 {
		return attempts
	}
	return 1
}

func (s *Service) billing() config.BillingConfig {
	if s.billingCfg == nil {
		return config.DefaultBillingConfig()
	}
	return s.billingCfg.Get()
}

// persist writes the invoice and everything the mutation produced in one
// transaction.
func (s *Service) persist(ctx context.Context, inv *invoicedomain.Invoice, expectedVersion int64, now time.Time, ch change) error {
	inv.Version = expectedVersion + 1
	inv.UpdatedAt = now

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, inv, expectedVersion); err != nil {
			return err
		}
		if ch.lines {
			if err := s.repo.ReplaceLines(ctx, tx, inv.ID, inv.Lines); err != nil {
				return err
			}
		}
		if ch.payment != nil {
			if err := s.repo.InsertPayment(ctx, tx, ch.payment); err != nil {
				return err
			}
		}
		if ch.refund != nil {
			if err := s.repo.InsertRefund(ctx, tx, ch.refund); err != nil {
				return err
			}
		}
		if ch.receipt != nil {
			if err := s.repo.InsertReceipt(ctx, tx, ch.receipt); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return invoicedomain.ErrAlreadyFiscalized
				}
				return err
			}
		}
		if p := ch.posting; p != nil {
			if _, err := s.ledgerSvc.PostTx(ctx, tx, p.sourceType, p.sourceID, p.occurredAt, p.postings); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) lockInvoice(ctx context.Context, id snowflake.ID) (func(), error) {
	return s.locker.Lock(ctx, invoiceLockKey(id))
}

func invoiceLockKey(id snowflake.ID) string {
	return "invoice:" + id.String()
}

func itemLockKey(itemID string) string {
	return "inventory_item:" + itemID
}

func parseInvoiceID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}

func parseLineID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidLineID
	}
	return id, nil
}

func (s *Service) startSpan(ctx context.Context, op string, invoiceID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "invoice."+op)
	if invoiceID != "" {
		span.SetAttributes(attribute.String("invoice.id", strings.TrimSpace(invoiceID)))
	}
	return ctx, span
}

// finish records err on the span and in the failure counter.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	kind := invoicedomain.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	s.metrics.RecordOperationFailure(ctx, op, string(kind))
	if kind == invoicedomain.KindInternal {
		s.log.Error("invoice operation failed", zap.String("operation", op), zap.Error(err))
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number":    invoice.Number,
		"client_id":         invoice.ClientID,
		"status":            string(invoice.Status),
		"ekasa_status":      string(invoice.EkasaStatus),
		"total":             invoice.TotalAmount.String(),
		"paid_amount":       invoice.PaidAmount.String(),
		"refunded_amount":   invoice.RefundedAmount.String(),
		"receivable_amount": invoice.ReceivableAmount.String(),
		"version":           invoice.Version,
	}
	if invoice.PetID != nil {
		metadata["pet_id"] = *invoice.PetID
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := invoice.ID.String()
	if err := s.auditSvc.AuditLog(ctx, action, auditdomain.TargetTypeInvoice, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
