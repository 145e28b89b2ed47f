package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/events"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	timeentrydomain "github.com/smallbiznis/casebill/internal/timeentry/domain"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// pricing is the reference data a generation run prices lines with. It is
// read before the transaction opens.
type pricing struct {
	base       currencydomain.Currency
	currencies map[snowflake.ID]currencydomain.Currency
	rates      map[snowflake.ID]*ratedomain.BillingRate
}

func (p pricing) toBase(amount decimal.Decimal, currencyID snowflake.ID) (decimal.Decimal, error) {
	if currencyID == 0 || currencyID == p.base.ID {
		return amount, nil
	}
	from, ok := p.currencies[currencyID]
	if !ok || !from.ExchangeRate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate for currency %s", invoicedomain.ErrInvariantViolation, currencyID)
	}
	return currencydomain.ConvertAmount(amount, from, p.base), nil
}

func (s *Service) GenerateInvoice(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	cfg := s.billing.Get()

	if req.CaseID == 0 {
		return invoicedomain.GenerateResult{}, invoicedomain.ErrCaseNotFound
	}
	if !validPercent(req.DiscountPercent) {
		return invoicedomain.GenerateResult{}, invoicedomain.ErrInvalidDiscount
	}
	taxRate := cfg.TaxRate()
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	if !validPercent(taxRate) {
		return invoicedomain.GenerateResult{}, invoicedomain.ErrInvalidTaxRate
	}
	periodStart, periodEnd, err := s.resolvePeriod(req, cfg)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	caseDetails, err := s.directory.GetCase(ctx, req.CaseID)
	if err != nil {
		if errors.Is(err, casedomain.ErrCaseNotFound) || errors.Is(err, casedomain.ErrClientNotFound) {
			return invoicedomain.GenerateResult{}, fmt.Errorf("%w: %v", invoicedomain.ErrCaseNotFound, err)
		}
		return invoicedomain.GenerateResult{}, err
	}

	base, err := s.currencySvc.GetBaseCurrency(ctx)
	if err != nil {
		if errors.Is(err, currencydomain.ErrNotConfigured) {
			return invoicedomain.GenerateResult{}, fmt.Errorf("%w: %w", invoicedomain.ErrNoApplicableCurrency, err)
		}
		return invoicedomain.GenerateResult{}, err
	}

	lockKey := "invoice:generate:" + req.CaseID.String()
	token, ok, err := s.locker.TryLock(ctx, lockKey, cfg.LockTTL)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	if !ok {
		return invoicedomain.GenerateResult{}, invoicedomain.ErrGenerationInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("failed to release generation lock", zap.String("case_id", req.CaseID.String()), zap.Error(err))
		}
	}()

	prices, err := s.loadPricing(ctx, caseDetails, base, periodStart, periodEnd)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	today := clock.Today(s.clock)
	now := s.clock.Now().UTC()
	source := req.Source
	if source == "" {
		source = invoicedomain.SourceManual
	}

	var (
		invoice  invoicedomain.Invoice
		warnings []invoicedomain.Warning
		deferred int
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := s.timeEntries.ListUnbilled(ctx, tx, req.CaseID, periodStart, periodEnd)
		if err != nil {
			return err
		}
		var expenses []expensedomain.Expense
		if req.IncludeExpenses {
			expenses, err = s.expenses.ListUnbilled(ctx, tx, req.CaseID, periodStart, periodEnd)
			if err != nil {
				return err
			}
		}
		if len(entries) == 0 && len(expenses) == 0 {
			return invoicedomain.ErrNoUnbilledWork
		}

		invoiceID := s.genID.Generate()
		timeLines, lineWarnings, skipped, err := s.priceTimeEntries(invoiceID, entries, prices, cfg.BlockOnUnresolvedRate(), now)
		if err != nil {
			return err
		}
		warnings = lineWarnings
		deferred = skipped
		expenseItems, err := s.priceExpenses(invoiceID, expenses, prices, now)
		if err != nil {
			return err
		}
		if len(timeLines) == 0 && len(expenseItems) == 0 {
			return invoicedomain.ErrNoUnbilledWork
		}

		totals := invoicedomain.Recompute(lineTotals(timeLines), itemAmounts(expenseItems), req.DiscountPercent, taxRate)

		number, err := s.nextInvoiceNumber(ctx, tx, cfg.InvoicePrefix, today)
		if err != nil {
			return err
		}

		invoice = invoicedomain.Invoice{
			ID:               invoiceID,
			InvoiceNumber:    number,
			CaseID:           req.CaseID,
			ClientID:         caseDetails.Client.ID,
			CurrencyID:       base.ID,
			Status:           invoicedomain.InvoiceStatusDraft,
			IssueDate:        today,
			DueDate:          periodEnd.AddDate(0, 0, cfg.DueDays),
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			DiscountPercent:  req.DiscountPercent,
			SubtotalTime:     totals.SubtotalTime,
			SubtotalExpenses: totals.SubtotalExpenses,
			DiscountAmount:   totals.DiscountAmount,
			TaxRate:          taxRate,
			TaxAmount:        totals.TaxAmount,
			TotalAmount:      totals.TotalAmount,
			IsAutoGenerated:  true,
			AutoSend:         req.AutoSend,
			Notes:            req.Notes,
			CreatedBy:        createdBy(req.Actor),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: invoice number %s reused", invoicedomain.ErrInvariantViolation, number)
			}
			return err
		}

		for i := range timeLines {
			if err := tx.WithContext(ctx).Create(&timeLines[i]).Error; err != nil {
				if db.IsDuplicateKeyErr(err) {
					return fmt.Errorf("%w: time entry %s already billed", invoicedomain.ErrInvariantViolation, timeLines[i].TimeEntryID)
				}
				return err
			}
		}
		for i := range expenseItems {
			if err := tx.WithContext(ctx).Create(&expenseItems[i]).Error; err != nil {
				if db.IsDuplicateKeyErr(err) {
					return fmt.Errorf("%w: expense %s already billed", invoicedomain.ErrInvariantViolation, expenseItems[i].ExpenseID)
				}
				return err
			}
			marked, err := s.expenses.MarkBilled(ctx, tx, expenseItems[i].ExpenseID)
			if err != nil {
				return err
			}
			if !marked {
				return fmt.Errorf("%w: expense %s already billed", invoicedomain.ErrInvariantViolation, expenseItems[i].ExpenseID)
			}
		}
		return nil
	})
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	for _, w := range warnings {
		s.log.Warn("time entry left unbilled",
			zap.String("case_id", req.CaseID.String()),
			zap.String("time_entry_id", w.TimeEntryID),
			zap.String("worker_id", w.WorkerID),
			zap.String("code", w.Code),
		)
	}

	if deferred > 0 {
		s.log.Info("time entries logged during generation left for the next run",
			zap.String("case_id", req.CaseID.String()),
			zap.Int("count", deferred),
		)
	}

	s.log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("case_id", req.CaseID.String()),
		zap.String("total_amount", invoice.TotalAmount.StringFixed(2)),
		zap.String("source", source),
	)
	s.metrics.RecordInvoiceGenerated(ctx, source)
	s.emitAudit(ctx, req.Actor, "invoice.generated", &invoice, map[string]any{
		"source":        source,
		"warning_count": len(warnings),
	})
	s.publish(ctx, events.InvoiceGenerated, &invoice, map[string]any{"source": source})

	result := invoicedomain.GenerateResult{Warnings: warnings}
	if result.Warnings == nil {
		result.Warnings = []invoicedomain.Warning{}
	}

	if req.AutoSend {
		details, err := s.deliver(ctx, invoice.ID, req.Actor)
		if err != nil {
			result.DispatchError = err
		} else {
			result.Invoice = details
			return result, nil
		}
	}

	details, err := s.loadDetails(ctx, s.db, invoice)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	result.Invoice = details
	return result, nil
}

// resolvePeriod applies the default window ending today. Both bounds are UTC
// calendar dates and inclusive.
func (s *Service) resolvePeriod(req invoicedomain.GenerateRequest, cfg config.BillingConfig) (time.Time, time.Time, error) {
	end := clock.Today(s.clock)
	if req.PeriodEnd != nil {
		end = clock.StartOfDay(*req.PeriodEnd)
	}
	start := end.AddDate(0, 0, -cfg.DefaultPeriodDays)
	if req.PeriodStart != nil {
		start = clock.StartOfDay(*req.PeriodStart)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, invoicedomain.ErrInvalidPeriod
	}
	return start, end, nil
}

// loadPricing resolves one rate per worker with unbilled time in the period
// and indexes the currencies lines may be converted from.
func (s *Service) loadPricing(ctx context.Context, caseDetails *casedomain.CaseDetails, base currencydomain.Currency, start, end time.Time) (pricing, error) {
	prices := pricing{
		base:       base,
		currencies: make(map[snowflake.ID]currencydomain.Currency),
		rates:      make(map[snowflake.ID]*ratedomain.BillingRate),
	}

	currencies, err := s.currencySvc.List(ctx)
	if err != nil {
		return prices, err
	}
	for _, c := range currencies {
		prices.currencies[c.ID] = c
	}

	entries, err := s.timeEntries.ListUnbilled(ctx, s.db, caseDetails.Case.ID, start, end)
	if err != nil {
		return prices, err
	}
	for _, entry := range entries {
		if _, seen := prices.rates[entry.WorkerID]; seen {
			continue
		}
		rate, err := s.rates.ResolveRate(ctx, entry.WorkerID, caseDetails.Case.Category)
		if err != nil {
			return prices, err
		}
		prices.rates[entry.WorkerID] = rate
	}
	return prices, nil
}

// priceTimeEntries prices entries against the rates resolved before the
// transaction. An entry whose worker was never resolved was logged after that
// lookup; it stays unbilled and is counted in deferred.
func (s *Service) priceTimeEntries(invoiceID snowflake.ID, entries []timeentrydomain.TimeEntry, prices pricing, block bool, now time.Time) (lines []invoicedomain.InvoiceTimeEntry, warnings []invoicedomain.Warning, deferred int, err error) {
	lines = make([]invoicedomain.InvoiceTimeEntry, 0, len(entries))

	for _, entry := range entries {
		rate, resolved := prices.rates[entry.WorkerID]
		if !resolved {
			deferred++
			continue
		}
		if rate == nil {
			if block {
				return nil, nil, 0, fmt.Errorf("%w: time entry %s worker %s", invoicedomain.ErrUnresolvedRate, entry.ID, entry.WorkerID)
			}
			warnings = append(warnings, invoicedomain.Warning{
				Code:        invoicedomain.WarningUnresolvedRate,
				TimeEntryID: entry.ID.String(),
				WorkerID:    entry.WorkerID.String(),
				Message:     "no active billing rate applies to this worker",
			})
			continue
		}

		rateAmount, err := prices.toBase(rate.Amount, rate.CurrencyID)
		if err != nil {
			return nil, nil, 0, err
		}
		lines = append(lines, invoicedomain.InvoiceTimeEntry{
			ID:            s.genID.Generate(),
			InvoiceID:     invoiceID,
			TimeEntryID:   entry.ID,
			BillingRateID: rate.ID,
			WorkerID:      entry.WorkerID,
			Description:   entry.Description,
			Minutes:       entry.Minutes,
			Hours:         invoicedomain.Hours(entry.Minutes),
			RateAmount:    rateAmount,
			Total:         invoicedomain.LineTotal(entry.Minutes, rateAmount),
			CreatedAt:     now,
		})
	}
	return lines, warnings, deferred, nil
}

func (s *Service) priceExpenses(invoiceID snowflake.ID, expenses []expensedomain.Expense, prices pricing, now time.Time) ([]invoicedomain.InvoiceExpenseItem, error) {
	items := make([]invoicedomain.InvoiceExpenseItem, 0, len(expenses))
	for _, expense := range expenses {
		amount, err := prices.toBase(expense.EffectiveBillable(), expense.CurrencyID)
		if err != nil {
			return nil, err
		}
		items = append(items, invoicedomain.InvoiceExpenseItem{
			ID:             s.genID.Generate(),
			InvoiceID:      invoiceID,
			ExpenseID:      expense.ID,
			Description:    expense.Description,
			BillableAmount: amount,
			CreatedAt:      now,
		})
	}
	return items, nil
}

func lineTotals(lines []invoicedomain.InvoiceTimeEntry) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Total)
	}
	return out
}

func itemAmounts(items []invoicedomain.InvoiceExpenseItem) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		out = append(out, item.BillableAmount)
	}
	return out
}

func validPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && !v.GreaterThan(hundred)
}
