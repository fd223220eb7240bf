package metrics

import (
	"context"
	"errors"
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

// Metrics exposes ledger instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	paymentsRecorded     metric.Int64Counter
	paymentAmount        metric.Int64Counter
	paymentRejected      metric.Int64Counter
	taxBreakdownPending  metric.Int64Counter
	invoiceTransitions   metric.Int64Counter
	paymentRecordLatency metric.Float64Histogram
}

// NewProvider installs the global meter provider. With export disabled it
// installs a noop provider so instruments stay cheap to call.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		noopProvider := noop.NewMeterProvider()
		otel.SetMeterProvider(noopProvider)
		return noopProvider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval)),
	))
	otel.SetMeterProvider(provider)
	log.Info("exporting ledger metrics",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	lc.Append(fx.StopHook(provider.Shutdown))
	return provider, nil
}

const exportInterval = 10 * time.Second

// New registers the ledger instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "studioledger"
	}
	meter := provider.Meter(name)

	var (
		m    Metrics
		errs []error
	)
	counter := func(dst *metric.Int64Counter, name, desc string) {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		*dst = c
	}
	counter(&m.paymentsRecorded, "studioledger_payments_recorded_total", "Payments committed against an invoice.")
	counter(&m.paymentAmount, "studioledger_payment_amount_minor_total", "Sum of recorded payments in minor units.")
	counter(&m.paymentRejected, "studioledger_payment_rejected_total", "Payments refused before commit, by reason.")
	counter(&m.taxBreakdownPending, "studioledger_tax_breakdown_pending_total", "Payments committed without a tax breakdown.")
	counter(&m.invoiceTransitions, "studioledger_invoice_transitions_total", "Invoice status changes.")

	latency, err := meter.Float64Histogram("studioledger_payment_record_seconds", metric.WithUnit("s"))
	errs = append(errs, err)
	m.paymentRecordLatency = latency

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordPayment counts a committed payment.
func (m *Metrics) RecordPayment(ctx context.Context, method, currency, status string, amount int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
		attribute.String("currency", strings.TrimSpace(currency)),
		attribute.String("status", strings.TrimSpace(status)),
	)...)
	m.paymentsRecorded.Add(ctx, 1, attrs)
	m.paymentAmount.Add(ctx, amount, attrs)
	m.paymentRecordLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordPaymentRejected counts a payment refused before commit.
func (m *Metrics) RecordPaymentRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.paymentRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTaxBreakdownPending counts payments committed without PaymentTax rows.
func (m *Metrics) RecordTaxBreakdownPending(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.TrimSpace(currency)))
	m.taxBreakdownPending.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceTransition counts status changes.
func (m *Metrics) RecordInvoiceTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)
	m.invoiceTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"method":      {},
	"currency":    {},
	"status":      {},
	"reason":      {},
	"from_status": {},
	"to_status":   {},
	"route":       {},
	"status_code": {},
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
