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

// Metrics exposes billing instruments.
type Metrics struct {
	invoicesGenerated metric.Int64Counter
	dispatchFailures  metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	recurringRuns     metric.Int64Counter
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

// New creates the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "casebill"
	}
	meter := provider.Meter(name)

	invoicesGenerated, err := meter.Int64Counter("casebill_invoices_generated_total")
	if err != nil {
		return nil, err
	}
	dispatchFailures, err := meter.Int64Counter("casebill_invoice_dispatch_failures_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("casebill_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	recurringRuns, err := meter.Int64Counter("casebill_recurring_template_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesGenerated: invoicesGenerated,
		dispatchFailures:  dispatchFailures,
		paymentsRecorded:  paymentsRecorded,
		recurringRuns:     recurringRuns,
	}, nil
}

// RecordInvoiceGenerated counts invoices by trigger source (manual, recurring).
func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordDispatchFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatchFailures.Add(ctx, 1)
}

func (m *Metrics) RecordPayment(ctx context.Context, method string, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("method", strings.TrimSpace(method)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecurringRun counts template outcomes (generated, failed).
func (m *Metrics) RecordRecurringRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.recurringRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"source":  {},
	"method":  {},
	"status":  {},
	"outcome": {},
	"reason":  {},
}

// FilterAttributes strips labels outside the allow list to keep cardinality low.
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
