package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("method", "cash"),
		attribute.String("client_id", "456"),
		attribute.String("outcome", "generated"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "client_id" {
			t.Fatalf("client_id must be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoiceGenerated(context.Background(), "manual")
	m.RecordPayment(context.Background(), "cash", "completed")
	m.RecordRecurringRun(context.Background(), "failed")
	m.RecordDispatchFailure(context.Background())
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordInvoiceGenerated(context.Background(), "recurring")
}
