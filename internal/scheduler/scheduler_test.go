package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/events"
	obscontext "github.com/smallbiznis/casebill/internal/observability/context"
	obsmetrics "github.com/smallbiznis/casebill/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/smallbiznis/casebill/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRecurringSvc struct {
	recurringdomain.Service

	calls     int
	today     time.Time
	actorType string
	results   []recurringdomain.RunResult
	err       error
}

func (f *fakeRecurringSvc) RunDue(ctx context.Context, today time.Time) ([]recurringdomain.RunResult, error) {
	f.calls++
	f.today = today
	f.actorType, _ = obscontext.ActorFromContext(ctx)
	return f.results, f.err
}

type countingBroker struct {
	topics []string
}

func (b *countingBroker) Publish(_ context.Context, topic string, _ []byte) error {
	b.topics = append(b.topics, topic)
	return nil
}

const testService = "casebill"

func newTestScheduler(t *testing.T, recurring recurringdomain.Service, cfg Config) (*Scheduler, *gorm.DB, *countingBroker, *clock.FakeClock) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&events.BillingEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC))
	broker := &countingBroker{}

	s, err := New(Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		RecurringSvc: recurring,
		Relay:        events.NewRelay(conn, broker, fake, zap.NewNop()),
		Config:       cfg,
	})
	require.NoError(t, err)
	return s, conn, broker, fake
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: testService,
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.SystemClock{}}
	err = s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": testService,
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "casebill_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": testService,
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "casebill_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	node, _ := snowflake.NewNode(1)
	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.SystemClock{}}
	boom := errors.New("boom")
	err := s.runJob(context.Background(), "broken", 1, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunOnceBillsRecurringAndDrainsOutbox(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: testService, Environment: "test"})

	recurring := &fakeRecurringSvc{results: []recurringdomain.RunResult{
		{TemplateID: "1", Outcome: recurringdomain.OutcomeGenerated, InvoiceID: "10"},
		{TemplateID: "2", Outcome: recurringdomain.OutcomeFailed, Error: "no_unbilled_work"},
		{TemplateID: "3", Outcome: recurringdomain.OutcomeGenerated, InvoiceID: "11", DispatchError: "smtp down"},
	}}
	s, conn, broker, fake := newTestScheduler(t, recurring, Config{BatchSize: 2})

	ctx := context.Background()
	node, _ := snowflake.NewNode(2)
	outbox := events.NewOutboxPublisher(conn, node, fake)
	for _, topic := range []string{events.InvoiceGenerated, events.InvoiceSent, events.InvoicePaid} {
		require.NoError(t, events.PublishJSON(ctx, outbox, topic, map[string]string{"invoice_id": "10"}))
		fake.Advance(time.Second)
	}

	require.NoError(t, s.RunOnce(ctx))

	assert.Equal(t, 1, recurring.calls)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), recurring.today)
	assert.Equal(t, "system", recurring.actorType)
	assert.Equal(t, []string{events.InvoiceGenerated, events.InvoiceSent, events.InvoicePaid}, broker.topics)

	base := map[string]string{"service": testService, "env": "test", "job": JobRecurringInvoices}
	failedLabels := map[string]string{"resource": obsmetrics.ResourceRecurringTemplates}
	invoiceLabels := map[string]string{"resource": obsmetrics.ResourceInvoices}
	for k, v := range base {
		failedLabels[k] = v
		invoiceLabels[k] = v
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "casebill_scheduler_batch_failed_total", failedLabels))
	assert.Equal(t, float64(2), getCounterValue(t, registry, "casebill_scheduler_batch_processed_total", invoiceLabels))
}

func TestRunOnceContinuesAfterRecurringError(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	recurring := &fakeRecurringSvc{err: errors.New("select due templates: db closed")}
	s, conn, broker, fake := newTestScheduler(t, recurring, Config{})

	node, _ := snowflake.NewNode(2)
	outbox := events.NewOutboxPublisher(conn, node, fake)
	require.NoError(t, events.PublishJSON(context.Background(), outbox, events.PaymentRecorded, map[string]string{"payment_id": "5"}))

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobRecurringInvoices)
	assert.Equal(t, []string{events.PaymentRecorded}, broker.topics)
}

func TestRunOnceSkipsWhenRunLockHeld(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	recurring := &fakeRecurringSvc{}
	s, _, _, _ := newTestScheduler(t, recurring, Config{})
	locker := lock.NewLocalLocker()
	s.locker = locker

	ctx := context.Background()
	_, ok, err := locker.TryLock(ctx, runLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RunOnce(ctx))
	assert.Zero(t, recurring.calls)
}

func TestEnabledJobsFilter(t *testing.T) {
	restore := swapPrometheusRegistry(prometheus.NewRegistry())
	defer restore()

	recurring := &fakeRecurringSvc{}
	s, _, _, _ := newTestScheduler(t, recurring, Config{EnabledJobs: []string{"OUTBOX_RELAY"}})

	assert.True(t, s.isJobEnabled(JobOutboxRelay))
	assert.False(t, s.isJobEnabled(JobRecurringInvoices))
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, recurring.calls)
}

func TestNewRejectsBadSpec(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	_, err := New(Params{
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.SystemClock{},
		RecurringSvc: &fakeRecurringSvc{},
		Relay:        events.NewRelay(nil, &countingBroker{}, nil, zap.NewNop()),
		Config:       Config{Spec: "every tuesday-ish"},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartStop(t *testing.T) {
	recurring := &fakeRecurringSvc{}
	s, _, _, _ := newTestScheduler(t, recurring, Config{Spec: "@hourly"})

	require.NoError(t, s.Start())
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	s.Stop()
	s.Stop()
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
