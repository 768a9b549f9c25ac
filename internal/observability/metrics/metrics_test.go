package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("method", "CASH"),
		attribute.String("invoice_id", "123"),
		attribute.String("client_id", "c-1"),
		attribute.String("operation", "approve"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "invoice_id" || attr.Key == "client_id" {
			t.Fatalf("unexpected label %s retained", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoiceCreated(context.Background(), "draft")
	m.RecordPayment(context.Background(), "CASH", 100)
	m.RecordOperationFailure(context.Background(), "refund", "OverRefund")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "vetbill"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordPayment(context.Background(), "CARD", 5000)
}

func TestRecordPaymentCountsAndSums(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "vetbill"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPayment(ctx, "CASH", 5000)
	m.RecordPayment(ctx, "CASH", 5800)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["vetbill_payments_posted_total"])
	assert.Equal(t, int64(10800), totals["vetbill_payment_amount_cents_total"])
}
