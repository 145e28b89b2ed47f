package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/events"
	obsmetrics "github.com/smallbiznis/casebill/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/smallbiznis/casebill/pkg/lock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRecurringInvoices = "recurring_invoices"
	JobOutboxRelay       = "outbox_relay"
)

var (
	ErrInvalidConfig  = errors.New("invalid_scheduler_config")
	ErrAlreadyStarted = errors.New("scheduler_already_started")
)

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	RecurringSvc recurringdomain.Service
	Relay        *events.Relay
	Locker       lock.Locker `optional:"true"`
	Config       Config      `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	recurringSvc recurringdomain.Service
	relay        *events.Relay
	locker       lock.Locker

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.RecurringSvc == nil || p.Relay == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if _, err := cron.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("%w: cron spec %q: %v", ErrInvalidConfig, cfg.Spec, err)
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          cfg,
		genID:        p.GenID,
		clock:        p.Clock,
		recurringSvc: p.RecurringSvc,
		relay:        p.Relay,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time. Jobs run in order and a
// failing job does not prevent the next one.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	release, ok, err := s.acquireRunLock(parent)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Info("scheduler run skipped, another instance holds the run lock")
		return nil
	}
	defer release()

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobRecurringInvoices, s.isJobEnabled(JobRecurringInvoices), func(ctx context.Context) error {
			return s.runJob(ctx, JobRecurringInvoices, s.cfg.BatchSize, s.cfg.JobTimeout, s.RecurringInvoicesJob)
		}},
		{JobOutboxRelay, s.isJobEnabled(JobOutboxRelay), func(ctx context.Context) error {
			return s.runJob(ctx, JobOutboxRelay, s.cfg.BatchSize, s.cfg.JobTimeout, s.OutboxRelayJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RecurringInvoicesJob bills every recurring template due today.
func (s *Scheduler) RecurringInvoicesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecurringInvoices, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	results, err := s.recurringSvc.RunDue(ctx, clock.Today(s.clock))
	generated, failed := 0, 0
	for _, result := range results {
		if result.Outcome == recurringdomain.OutcomeGenerated {
			generated++
			if result.DispatchError != "" {
				s.logger(ctx).Warn("scheduler.recurring.dispatch_failed",
					zap.String("template_id", result.TemplateID),
					zap.String("invoice_id", result.InvoiceID),
					zap.String("error", result.DispatchError),
				)
			}
			continue
		}
		failed++
		s.logger(ctx).Warn("scheduler.recurring.template_failed",
			zap.String("template_id", result.TemplateID),
			zap.String("case_id", result.CaseID),
			zap.String("error", result.Error),
		)
	}
	run.AddProcessed(generated)
	run.AddErrors(failed)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobRecurringInvoices, obsmetrics.ResourceRecurringTemplates, len(results))
	schedMetrics.AddBatchProcessed(JobRecurringInvoices, obsmetrics.ResourceInvoices, generated)
	schedMetrics.AddBatchFailed(JobRecurringInvoices, obsmetrics.ResourceRecurringTemplates, failed)

	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.recurring.run_failed", JobRecurringInvoices, err)
		return err
	}
	return nil
}

// OutboxRelayJob drains pending billing events in batches until the outbox
// is empty or the context ends.
func (s *Scheduler) OutboxRelayJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobOutboxRelay, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	schedMetrics := obsmetrics.Scheduler()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		relayed, err := s.relay.RelayPending(ctx, s.cfg.BatchSize)
		if err != nil {
			schedMetrics.AddBatchFailed(JobOutboxRelay, obsmetrics.ResourceBillingEvents, 1)
			s.logSchedulerError(ctx, run, "scheduler.outbox.relay_failed", JobOutboxRelay, err)
			return err
		}
		run.AddProcessed(relayed)
		schedMetrics.AddBatchProcessed(JobOutboxRelay, obsmetrics.ResourceBillingEvents, relayed)
		if relayed < s.cfg.BatchSize {
			return nil
		}
	}
}

// Start registers RunOnce on the cron spec and begins firing it.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	if err := c.AddFunc(s.cfg.Spec, func() { s.trigger(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.log.Info("scheduler started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop halts the cron trigger, cancels in-flight jobs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	c.Stop()
	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) trigger(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()
	if err := s.safeRunOnce(ctx); err != nil {
		s.log.Warn("scheduler run failed", zap.Error(err))
	}
}
