package service

import (
	"context"
	"time"

	"github.com/smallbiznis/vetbill/internal/config"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	receivablesdomain "github.com/smallbiznis/vetbill/internal/receivables/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       invoicedomain.Repository
	BillingCfg *config.BillingConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       invoicedomain.Repository
	billingCfg *config.BillingConfigHolder
}

func NewService(p Params) receivablesdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("receivables.service"),
		repo:       p.Repo,
		billingCfg: p.BillingCfg,
	}
}

// Compute ages every invoice that still has money owed. All figures come from
// a single read so buckets always add up to the total.
func (s *Service) Compute(ctx context.Context, now time.Time) (receivablesdomain.Report, error) {
	rows, err := s.repo.ListOpenReceivables(ctx, s.db)
	if err != nil {
		return receivablesdomain.Report{}, err
	}

	overdueDays := s.overdueDays()
	report := receivablesdomain.Report{
		AsOf:        now,
		OverdueDays: overdueDays,
		ByInvoice:   make([]receivablesdomain.OpenInvoice, 0, len(rows)),
	}
	for _, row := range rows {
		age := ageDays(now, row.CreatedAt)

		report.TotalReceivable += row.ReceivableAmount
		report.OpenInvoiceCount++
		if age > overdueDays {
			report.OverdueCount++
		}
		switch {
		case age <= 30:
			report.AgingBuckets.Current += row.ReceivableAmount
		case age <= 60:
			report.AgingBuckets.Days31To60 += row.ReceivableAmount
		case age <= 90:
			report.AgingBuckets.Days61To90 += row.ReceivableAmount
		default:
			report.AgingBuckets.Days90Plus += row.ReceivableAmount
		}

		report.ByInvoice = append(report.ByInvoice, receivablesdomain.OpenInvoice{
			ID:               row.ID.String(),
			Number:           row.Number,
			ReceivableAmount: row.ReceivableAmount,
			CreatedAt:        row.CreatedAt,
			AgeDays:          age,
		})
	}

	s.log.Debug("receivables computed",
		zap.Int("open_invoices", report.OpenInvoiceCount),
		zap.String("total", report.TotalReceivable.String()),
	)
	return report, nil
}

func (s *Service) overdueDays() int {
	if s.billingCfg == nil {
		return config.DefaultBillingConfig().Receivables.OverdueDays
	}
	return s.billingCfg.Get().Receivables.OverdueDays
}

// ageDays floors to whole days; invoices dated in the future count as age 0.
func ageDays(now, createdAt time.Time) int {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}
