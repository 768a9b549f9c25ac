package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing lifecycle instruments.
type Metrics struct {
	invoicesCreated    metric.Int64Counter
	invoicesApproved   metric.Int64Counter
	paymentsPosted     metric.Int64Counter
	paymentAmount      metric.Int64Counter
	refundsPosted      metric.Int64Counter
	invoicesFiscalized metric.Int64Counter
	versionConflicts   metric.Int64Counter
	operationFailures  metric.Int64Counter
	jobRuns            metric.Int64Counter
	receivableCents    metric.Int64Gauge
	overdueInvoices    metric.Int64Gauge
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "vetbill"
	}
	meter := provider.Meter(name)

	var err error
	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return c
	}

	m := &Metrics{
		invoicesCreated:    counter("vetbill_invoices_created_total", "Invoice drafts created", "{invoice}"),
		invoicesApproved:   counter("vetbill_invoices_approved_total", "Invoices approved", "{invoice}"),
		paymentsPosted:     counter("vetbill_payments_posted_total", "Payments posted against invoices", "{payment}"),
		paymentAmount:      counter("vetbill_payment_amount_cents_total", "Sum of posted payments in cents", "{cent}"),
		refundsPosted:      counter("vetbill_refunds_posted_total", "Refunds posted against invoices", "{refund}"),
		invoicesFiscalized: counter("vetbill_invoices_fiscalized_total", "Fiscal receipts issued", "{receipt}"),
		versionConflicts:   counter("vetbill_invoice_version_conflicts_total", "Optimistic concurrency conflicts on invoice updates", "{conflict}"),
		operationFailures:  counter("vetbill_invoice_operation_failures_total", "Rejected lifecycle operations by error kind", "{failure}"),
		jobRuns:            counter("vetbill_scheduler_job_runs_total", "Background job runs by outcome", "{run}"),
	}
	if err == nil {
		m.receivableCents, err = meter.Int64Gauge("vetbill_receivable_cents", metric.WithDescription("Open receivable at the last snapshot"), metric.WithUnit("{cent}"))
	}
	if err == nil {
		m.overdueInvoices, err = meter.Int64Gauge("vetbill_overdue_invoices", metric.WithDescription("Overdue invoices at the last snapshot"), metric.WithUnit("{invoice}"))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordInvoiceCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source", strings.TrimSpace(source)))...))
}

func (m *Metrics) RecordInvoiceApproved(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesApproved.Add(ctx, 1)
}

func (m *Metrics) RecordPayment(ctx context.Context, method string, amountCents int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("method", strings.TrimSpace(method)))...)
	m.paymentsPosted.Add(ctx, 1, attrs)
	if amountCents > 0 {
		m.paymentAmount.Add(ctx, amountCents, attrs)
	}
}

func (m *Metrics) RecordRefund(ctx context.Context) {
	if m == nil {
		return
	}
	m.refundsPosted.Add(ctx, 1)
}

func (m *Metrics) RecordFiscalized(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesFiscalized.Add(ctx, 1)
}

func (m *Metrics) RecordVersionConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))...))
}

func (m *Metrics) RecordOperationFailure(ctx context.Context, operation, kind string) {
	if m == nil {
		return
	}
	m.operationFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("error_kind", strings.TrimSpace(kind)),
	)...))
}

func (m *Metrics) RecordJobRun(ctx context.Context, job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("status", status),
	)...))
}

func (m *Metrics) RecordReceivables(ctx context.Context, receivableCents int64, overdue int) {
	if m == nil {
		return
	}
	m.receivableCents.Record(ctx, receivableCents)
	m.overdueInvoices.Record(ctx, int64(overdue))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":     {},
	"method":     {},
	"operation":  {},
	"error_kind": {},
	"job":        {},
	"status":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
