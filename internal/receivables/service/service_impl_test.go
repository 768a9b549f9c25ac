package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/config"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	receivablesdomain "github.com/smallbiznis/vetbill/internal/receivables/domain"
	"github.com/smallbiznis/vetbill/internal/receivables/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type snapshotRepo struct {
	invoicedomain.Repository
	rows  []invoicedomain.ReceivableRow
	err   error
	calls int
}

func (r *snapshotRepo) ListOpenReceivables(context.Context, *gorm.DB) ([]invoicedomain.ReceivableRow, error) {
	r.calls++
	return r.rows, r.err
}

func row(id int64, number string, cents int64, age time.Duration) invoicedomain.ReceivableRow {
	return invoicedomain.ReceivableRow{
		ID:               snowflake.ID(id),
		Number:           number,
		ReceivableAmount: invoicedomain.Money(cents),
		CreatedAt:        now.Add(-age),
	}
}

func newService(repo invoicedomain.Repository, cfg config.BillingConfig) receivablesdomain.Service {
	return service.NewService(service.Params{
		Log:        zap.NewNop(),
		Repo:       repo,
		BillingCfg: config.NewStaticBillingConfigHolder(cfg),
	})
}

func TestComputeBucketsByAge(t *testing.T) {
	day := 24 * time.Hour
	repo := &snapshotRepo{rows: []invoicedomain.ReceivableRow{
		row(1, "INV-1000", 10800, 2*day),
		row(2, "INV-1001", 1000, 30*day+23*time.Hour),
		row(3, "INV-1002", 2000, 31*day),
		row(4, "INV-1003", 3000, 60*day),
		row(5, "INV-1004", 4000, 61*day),
		row(6, "INV-1005", 5000, 90*day+time.Hour),
		row(7, "INV-1006", 6000, 91*day),
		row(8, "INV-1007", 700, 400*day),
	}}

	report, err := newService(repo, config.DefaultBillingConfig()).Compute(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 8, report.OpenInvoiceCount)
	assert.Equal(t, "325.00", report.TotalReceivable.String())
	assert.Equal(t, 6, report.OverdueCount)
	assert.Equal(t, 30, report.OverdueDays)

	assert.Equal(t, "118.00", report.AgingBuckets.Current.String())
	assert.Equal(t, "50.00", report.AgingBuckets.Days31To60.String())
	assert.Equal(t, "90.00", report.AgingBuckets.Days61To90.String())
	assert.Equal(t, "67.00", report.AgingBuckets.Days90Plus.String())

	buckets := report.AgingBuckets
	assert.Equal(t, report.TotalReceivable, buckets.Current+buckets.Days31To60+buckets.Days61To90+buckets.Days90Plus)

	require.Len(t, report.ByInvoice, 8)
	assert.Equal(t, "1", report.ByInvoice[0].ID)
	assert.Equal(t, "INV-1000", report.ByInvoice[0].Number)
	assert.Equal(t, 2, report.ByInvoice[0].AgeDays)
	assert.Equal(t, 30, report.ByInvoice[1].AgeDays)
}

func TestComputeUsesConfiguredOverdueDays(t *testing.T) {
	day := 24 * time.Hour
	repo := &snapshotRepo{rows: []invoicedomain.ReceivableRow{
		row(1, "INV-1000", 100, 8*day),
		row(2, "INV-1001", 100, 6*day),
	}}
	cfg := config.DefaultBillingConfig()
	cfg.Receivables.OverdueDays = 7

	report, err := newService(repo, cfg).Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OverdueCount)
}

func TestComputeEmptyAndFutureDated(t *testing.T) {
	report, err := newService(&snapshotRepo{}, config.DefaultBillingConfig()).Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, report.OpenInvoiceCount)
	assert.Zero(t, report.TotalReceivable)
	assert.NotNil(t, report.ByInvoice)

	repo := &snapshotRepo{rows: []invoicedomain.ReceivableRow{row(1, "INV-1000", 500, -time.Hour)}}
	report, err = newService(repo, config.DefaultBillingConfig()).Compute(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ByInvoice[0].AgeDays)
	assert.Equal(t, "5.00", report.AgingBuckets.Current.String())
}

func TestComputePropagatesReadError(t *testing.T) {
	boom := errors.New("db down")
	_, err := newService(&snapshotRepo{err: boom}, config.DefaultBillingConfig()).Compute(context.Background(), now)
	assert.ErrorIs(t, err, boom)
}
