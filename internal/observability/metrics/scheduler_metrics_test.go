package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/casebill/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(context.Canceled) {
		t.Fatalf("cancellation should be retryable")
	}
	if !IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("db errors should be retryable")
	}
	if IsSchedulerErrorRetryable(errors.New("no_unbilled_work")) {
		t.Fatalf("business errors are not retryable")
	}
}

func TestBatchCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetricsForTest(registry)

	m.AddBatchProcessed("recurring_invoices", ResourceRecurringTemplates, 3)
	m.AddBatchFailed("recurring_invoices", ResourceRecurringTemplates, 1)
	m.AddBatchFailed("recurring_invoices", ResourceRecurringTemplates, 0)

	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("recurring_invoices", ResourceRecurringTemplates)); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchFailed.WithLabelValues("recurring_invoices", ResourceRecurringTemplates)); got != 1 {
		t.Fatalf("expected failed count 1, got %v", got)
	}
}

func TestObserveJobDurationRecordsSample(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetricsForTest(registry)

	m.ObserveJobDuration("recurring_invoices", 250*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var histogram *dto.Histogram
	for _, family := range families {
		if family.GetName() != "casebill_scheduler_job_duration_seconds" {
			continue
		}
		histogram = family.GetMetric()[0].GetHistogram()
	}
	if histogram == nil {
		t.Fatalf("duration histogram not gathered")
	}
	if histogram.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", histogram.GetSampleCount())
	}
}
