package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/authorization"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunDue selects the due templates, then bills each one in its own
// generation transaction. Schedule updates are guarded by the
// next_invoice_date that was read, so a template another runner already
// advanced is left alone.
func (s *Service) RunDue(ctx context.Context, today time.Time) ([]domain.RunResult, error) {
	today = clock.StartOfDay(today)

	var due []domain.RecurringInvoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return db.ForUpdateSkipLocked(tx.WithContext(ctx)).
			Where("is_active = ? AND next_invoice_date <= ?", true, today).
			Order("next_invoice_date ASC, id ASC").
			Find(&due).Error
	})
	if err != nil {
		return nil, err
	}

	results := make([]domain.RunResult, 0, len(due))
	for _, template := range due {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, s.runOne(ctx, template))
	}

	s.log.Info("recurring run finished",
		zap.Time("today", today),
		zap.Int("due", len(due)),
		zap.Int("failed", countFailed(results)),
	)
	return results, nil
}

func (s *Service) runOne(ctx context.Context, template domain.RecurringInvoice) domain.RunResult {
	result := domain.RunResult{
		TemplateID:      template.ID.String(),
		CaseID:          template.CaseID.String(),
		NextInvoiceDate: template.NextInvoiceDate,
	}
	periodStart, periodEnd := template.Period()

	generated, err := s.invoiceSvc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{
		CaseID:          template.CaseID,
		PeriodStart:     &periodStart,
		PeriodEnd:       &periodEnd,
		DiscountPercent: template.DiscountPercent,
		TaxRate:         template.TaxRate,
		IncludeExpenses: template.IncludeExpenses,
		AutoSend:        true,
		Actor:           authorization.SystemActor,
		Notes: "Auto-generated invoice for period " +
			periodStart.Format(time.DateOnly) + " - " + periodEnd.Format(time.DateOnly),
		Source: invoicedomain.SourceRecurring,
	})
	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Error = err.Error()
		if recordErr := s.recordFailure(ctx, template, err); recordErr != nil {
			s.log.Error("failed to record recurring failure",
				zap.String("template_id", template.ID.String()),
				zap.Error(recordErr),
			)
		}
		s.log.Warn("recurring invoice generation failed",
			zap.String("template_id", template.ID.String()),
			zap.String("case_id", template.CaseID.String()),
			zap.Error(err),
		)
		s.obsMetrics.RecordRecurringRun(ctx, domain.OutcomeFailed)
		if pubErr := events.PublishJSON(ctx, s.events, events.RecurringFailed, map[string]any{
			"template_id":       template.ID.String(),
			"case_id":           template.CaseID.String(),
			"next_invoice_date": template.NextInvoiceDate.Format(time.DateOnly),
			"error":             err.Error(),
		}); pubErr != nil {
			s.log.Warn("failed to publish recurring event", zap.Error(pubErr))
		}
		return result
	}

	// An invoice that could not be emailed still counts as generated.
	result.Outcome = domain.OutcomeGenerated
	result.InvoiceID = generated.Invoice.ID.String()
	result.InvoiceNumber = generated.Invoice.InvoiceNumber
	if generated.DispatchError != nil {
		result.DispatchError = generated.DispatchError.Error()
	}

	next, deactivated, err := s.advance(ctx, template, generated.Invoice.ID)
	if err != nil {
		s.log.Error("failed to advance recurring schedule",
			zap.String("template_id", template.ID.String()),
			zap.String("invoice_id", result.InvoiceID),
			zap.Error(err),
		)
		result.Error = err.Error()
	} else {
		result.NextInvoiceDate = next
		result.Deactivated = deactivated
	}

	s.obsMetrics.RecordRecurringRun(ctx, domain.OutcomeGenerated)
	s.emitAudit(ctx, authorization.SystemActor, "recurring_invoice.generated", &template, map[string]any{
		"invoice_id":     result.InvoiceID,
		"invoice_number": result.InvoiceNumber,
	})
	return result
}

func (s *Service) advance(ctx context.Context, template domain.RecurringInvoice, invoiceID snowflake.ID) (time.Time, bool, error) {
	next := template.Advance()
	active := template.EndDate == nil || !next.After(*template.EndDate)
	now := s.clock.Now().UTC()

	res := s.db.WithContext(ctx).Exec(
		`UPDATE recurring_invoices
		 SET next_invoice_date = ?, is_active = ?, last_run_at = ?, last_error = NULL,
		     last_invoice_id = ?, updated_at = ?
		 WHERE id = ? AND next_invoice_date = ?`,
		next,
		active,
		now,
		invoiceID,
		now,
		template.ID,
		template.NextInvoiceDate,
	)
	if res.Error != nil {
		return template.NextInvoiceDate, false, res.Error
	}
	if res.RowsAffected == 0 {
		return template.NextInvoiceDate, false, invoicedomain.ErrInvariantViolation
	}
	return next, !active, nil
}

func (s *Service) recordFailure(ctx context.Context, template domain.RecurringInvoice, cause error) error {
	now := s.clock.Now().UTC()
	message := cause.Error()
	return s.db.WithContext(ctx).Exec(
		`UPDATE recurring_invoices
		 SET last_run_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND next_invoice_date = ?`,
		now,
		message,
		now,
		template.ID,
		template.NextInvoiceDate,
	).Error
}

func countFailed(results []domain.RunResult) int {
	failed := 0
	for _, r := range results {
		if r.Outcome == domain.OutcomeFailed {
			failed++
		}
	}
	return failed
}
