package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/clock"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/vetbill/internal/observability/metrics"
	receivablesdomain "github.com/smallbiznis/vetbill/internal/receivables/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReceivablesSnapshot = "receivables_snapshot"
	JobLowStockReport      = "low_stock_report"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	ReceivablesSvc receivablesdomain.Service
	InventorySvc   inventorydomain.Service
	Metrics        *obsmetrics.Metrics `optional:"true"`
	Config         Config              `optional:"true"`
}

// Scheduler periodically snapshots receivables and reports low stock.
type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	receivablesSvc receivablesdomain.Service
	inventorySvc   inventorydomain.Service
	metrics        *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.ReceivablesSvc == nil || p.InventorySvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		receivablesSvc: p.ReceivablesSvc,
		inventorySvc:   p.InventorySvc,
		metrics:        p.Metrics,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs every enabled job once. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	jobs := []struct {
		name string
		fn   func(context.Context) error
	}{
		{JobReceivablesSnapshot, s.ReceivablesSnapshotJob},
		{JobLowStockReport, s.LowStockReportJob},
	}

	var runErr error
	for _, job := range jobs {
		if ctx.Err() != nil {
			return errors.Join(runErr, ctx.Err())
		}
		if !s.isJobEnabled(job.name) {
			continue
		}
		if err := s.runJob(ctx, job.name, job.fn); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	err := fn(ctx)
	s.metrics.RecordJobRun(ctx, name, err)
	s.logJobFinish(ctx, run, err)
	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ReceivablesSnapshotJob(ctx context.Context) error {
	report, err := s.receivablesSvc.Compute(ctx, s.clock.Now())
	if err != nil {
		return err
	}

	s.metrics.RecordReceivables(ctx, report.TotalReceivable.Cents(), report.OverdueCount)
	s.logger(ctx).Info("receivables snapshot",
		zap.String("total_receivable", report.TotalReceivable.String()),
		zap.Int("open_invoices", report.OpenInvoiceCount),
		zap.Int("overdue_invoices", report.OverdueCount),
		zap.String("aging_90_plus", report.AgingBuckets.Days90Plus.String()),
	)
	return nil
}

func (s *Scheduler) LowStockReportJob(ctx context.Context) error {
	items, err := s.inventorySvc.LowStockItems(ctx)
	if err != nil {
		return err
	}

	log := s.logger(ctx)
	for _, item := range items {
		log.Warn("inventory item at or below minimum stock",
			zap.String("item_id", item.ID),
			zap.String("name", item.Name),
			zap.String("stock_on_hand", item.StockOnHand.String()),
			zap.String("min_stock", item.MinStock.String()),
		)
	}
	log.Debug("low stock report", zap.Int("items", len(items)))
	return nil
}
