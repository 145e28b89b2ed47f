package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/casebill/internal/billingtest"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	caseservice "github.com/smallbiznis/casebill/internal/caseregistry/service"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	currencyservice "github.com/smallbiznis/casebill/internal/currency/service"
	"github.com/smallbiznis/casebill/internal/events"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	expenserepo "github.com/smallbiznis/casebill/internal/expense/repository"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	"github.com/smallbiznis/casebill/internal/providers/pdf"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	rateservice "github.com/smallbiznis/casebill/internal/rate/service"
	timeentrydomain "github.com/smallbiznis/casebill/internal/timeentry/domain"
	timeentryrepo "github.com/smallbiznis/casebill/internal/timeentry/repository"
	"github.com/smallbiznis/casebill/pkg/lock"
	"github.com/smallbiznis/casebill/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	env        *billingtest.Env
	svc        *Service
	dispatcher *billingtest.RecordingDispatcher
	locker     *lock.LocalLocker
	eur        currencydomain.Currency

	client  casedomain.Client
	alice   casedomain.Worker
	bob     casedomain.Worker
	matter  casedomain.Case
	filings expensedomain.ExpenseCategory
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	env := billingtest.NewEnv(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	h := &harness{
		env:        env,
		dispatcher: &billingtest.RecordingDispatcher{},
		locker:     lock.NewLocalLocker(),
	}
	h.svc = h.build(policy, nil)

	h.client = env.SeedClient(t, "Acme GmbH", "billing@acme.test")
	h.alice = env.SeedWorker(t, "Alice", "alice@firm.test")
	h.bob = env.SeedWorker(t, "Bob", "bob@firm.test")
	h.matter = env.SeedCase(t, h.client, "Acme v. Globex", "litigation", &h.alice)
	h.filings = env.SeedCategory(t, "Court filings", "10", true)
	return h
}

func (h *harness) build(policy string, dispatcher invoicedomain.Dispatcher) *Service {
	log := zap.NewNop()
	conn := h.env.DB
	currencySvc := currencyservice.NewService(currencyservice.Params{
		DB: conn, Log: log, GenID: h.env.Node, Clock: h.env.Clock,
	})
	if dispatcher == nil {
		dispatcher = h.dispatcher
	}
	return newService(ServiceParam{
		DB:        conn,
		Log:       log,
		GenID:     h.env.Node,
		Clock:     h.env.Clock,
		AppConfig: config.Config{FirmName: "Test Legal"},
		Billing:   billingtest.Billing(policy),
		Locker:    h.locker,
		Directory: caseservice.NewDirectory(caseservice.Params{
			Log:     log,
			Cases:   repository.ProvideStore[casedomain.Case](conn),
			Clients: repository.ProvideStore[casedomain.Client](conn),
			Workers: repository.ProvideStore[casedomain.Worker](conn),
		}),
		CurrencySvc: currencySvc,
		Rates: rateservice.NewService(rateservice.Params{
			DB: conn, Log: log, GenID: h.env.Node, Clock: h.env.Clock, CurrencySvc: currencySvc,
		}),
		TimeEntries: timeentryrepo.Provide(),
		Expenses:    expenserepo.Provide(),
		Dispatcher:  dispatcher,
		PDF:         &pdf.NoOpProvider{},
		Events:      events.NewOutboxPublisher(conn, h.env.Node, h.env.Clock),
	})
}

// seedScenario prices 90 minutes at 50/h, 60 minutes at 80/h and a 40 expense
// with a 10% markup.
func (h *harness) seedScenario(t *testing.T) {
	t.Helper()
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)
	aliceID, bobID := h.alice.ID, h.bob.ID
	h.env.SeedRate(t, "50", h.eur, billingtest.RateScope{WorkerID: &aliceID})
	h.env.SeedRate(t, "80", h.eur, billingtest.RateScope{WorkerID: &bobID})

	h.env.SeedTimeEntry(t, h.matter, h.alice, 90, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	h.env.SeedTimeEntry(t, h.matter, h.bob, 60, time.Date(2024, 1, 16, 14, 0, 0, 0, time.UTC))
	h.env.SeedExpense(t, billingtest.ExpenseSeed{
		Case:       h.matter,
		Category:   h.filings,
		Worker:     h.alice,
		Currency:   h.eur,
		Amount:     "40",
		Markup:     "10",
		IsBillable: true,
		Date:       billingtest.Day(2024, 1, 20),
	})
}

func (h *harness) generate(t *testing.T, req invoicedomain.GenerateRequest) invoicedomain.GenerateResult {
	t.Helper()
	if req.CaseID == 0 {
		req.CaseID = h.matter.ID
	}
	res, err := h.svc.GenerateInvoice(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.env.DB.Model(model).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGenerateInvoicePricesTimeAndExpenses(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)

	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	inv := res.Invoice

	assert.True(t, inv.SubtotalTime.Equal(dec("125")), "subtotal_time %s", inv.SubtotalTime)
	assert.True(t, inv.SubtotalExpenses.Equal(dec("44")), "subtotal_expenses %s", inv.SubtotalExpenses)
	assert.True(t, inv.TaxAmount.IsZero())
	assert.True(t, inv.TotalAmount.Equal(dec("169")), "total %s", inv.TotalAmount)
	assert.True(t, inv.BalanceDue.Equal(dec("169")))
	assert.Equal(t, "INV-2024-0001", inv.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "EUR", inv.CurrencyCode)
	assert.Equal(t, billingtest.Day(2024, 1, 2), inv.PeriodStart.UTC())
	assert.Equal(t, billingtest.Day(2024, 2, 1), inv.PeriodEnd.UTC())
	assert.Equal(t, billingtest.Day(2024, 3, 2), inv.DueDate.UTC())
	assert.Len(t, inv.TimeEntries, 2)
	assert.Len(t, inv.Expenses, 1)
	assert.Empty(t, res.Warnings)

	var stored invoicedomain.Invoice
	require.NoError(t, h.env.DB.First(&stored, "id = ?", inv.ID).Error)
	assert.True(t, stored.IsAutoGenerated, "every builder-created invoice is flagged auto-generated")

	var billed int64
	require.NoError(t, h.env.DB.Model(&expensedomain.Expense{}).Where("is_billed = ?", true).Count(&billed).Error)
	assert.EqualValues(t, 1, billed)

	var pending []events.BillingEvent
	require.NoError(t, h.env.DB.Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, events.InvoiceGenerated, pending[0].EventType)
}

func TestGenerateInvoiceBillsWorkAtMostOnce(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})

	_, err := h.svc.GenerateInvoice(context.Background(), invoicedomain.GenerateRequest{
		CaseID:          h.matter.ID,
		IncludeExpenses: true,
	})
	require.ErrorIs(t, err, invoicedomain.ErrNoUnbilledWork)
	assert.EqualValues(t, 1, h.count(t, &invoicedomain.Invoice{}))
	assert.EqualValues(t, 2, h.count(t, &invoicedomain.InvoiceTimeEntry{}))
	assert.EqualValues(t, 1, h.count(t, &invoicedomain.InvoiceExpenseItem{}))

	h.env.SeedTimeEntry(t, h.matter, h.alice, 30, time.Date(2024, 1, 25, 9, 0, 0, 0, time.UTC))
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	assert.Equal(t, "INV-2024-0002", res.Invoice.InvoiceNumber)
	assert.True(t, res.Invoice.TotalAmount.Equal(dec("25")))
	assert.Empty(t, res.Invoice.Expenses)
}

func TestGenerateInvoiceWithoutWorkCreatesNothing(t *testing.T) {
	h := newHarness(t, "")
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)

	_, err := h.svc.GenerateInvoice(context.Background(), invoicedomain.GenerateRequest{
		CaseID:          h.matter.ID,
		IncludeExpenses: true,
	})
	require.ErrorIs(t, err, invoicedomain.ErrNoUnbilledWork)
	assert.Zero(t, h.count(t, &invoicedomain.Invoice{}))
	assert.Zero(t, h.count(t, &invoicedomain.InvoiceSequence{}))
	assert.Zero(t, h.count(t, &events.BillingEvent{}))
}

func TestGenerateInvoiceExcludesExpensesOnRequest(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)

	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: false})
	assert.True(t, res.Invoice.TotalAmount.Equal(dec("125")))

	var unbilled int64
	require.NoError(t, h.env.DB.Model(&expensedomain.Expense{}).Where("is_billed = ?", false).Count(&unbilled).Error)
	assert.EqualValues(t, 1, unbilled)
}

func TestGenerateInvoiceRequiresBaseCurrency(t *testing.T) {
	h := newHarness(t, "")
	h.env.SeedTimeEntry(t, h.matter, h.alice, 60, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	_, err := h.svc.GenerateInvoice(context.Background(), invoicedomain.GenerateRequest{CaseID: h.matter.ID})
	require.ErrorIs(t, err, invoicedomain.ErrNoApplicableCurrency)
	require.ErrorIs(t, err, currencydomain.ErrNotConfigured)
	assert.Zero(t, h.count(t, &currencydomain.Currency{}))
}

func TestGenerateInvoiceValidatesInput(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	ctx := context.Background()

	_, err := h.svc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{CaseID: h.env.Node.Generate()})
	assert.ErrorIs(t, err, invoicedomain.ErrCaseNotFound)

	_, err = h.svc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{CaseID: h.matter.ID, DiscountPercent: dec("101")})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDiscount)

	tax := dec("-1")
	_, err = h.svc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{CaseID: h.matter.ID, TaxRate: &tax})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTaxRate)

	start, end := billingtest.Day(2024, 2, 1), billingtest.Day(2024, 1, 1)
	_, err = h.svc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{CaseID: h.matter.ID, PeriodStart: &start, PeriodEnd: &end})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPeriod)

	assert.Zero(t, h.count(t, &invoicedomain.Invoice{}))
}

func TestGenerateInvoiceSkipsUnresolvedRate(t *testing.T) {
	h := newHarness(t, config.UnresolvedRateSkip)
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)
	aliceID := h.alice.ID
	h.env.SeedRate(t, "50", h.eur, billingtest.RateScope{WorkerID: &aliceID})
	h.env.SeedTimeEntry(t, h.matter, h.alice, 60, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	orphan := h.env.SeedTimeEntry(t, h.matter, h.bob, 60, time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC))

	res := h.generate(t, invoicedomain.GenerateRequest{})
	assert.True(t, res.Invoice.TotalAmount.Equal(dec("50")))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, invoicedomain.WarningUnresolvedRate, res.Warnings[0].Code)
	assert.Equal(t, orphan.ID.String(), res.Warnings[0].TimeEntryID)
	assert.EqualValues(t, 1, h.count(t, &invoicedomain.InvoiceTimeEntry{}))
}

func TestGenerateInvoiceBlocksOnUnresolvedRate(t *testing.T) {
	h := newHarness(t, config.UnresolvedRateBlock)
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)
	aliceID := h.alice.ID
	h.env.SeedRate(t, "50", h.eur, billingtest.RateScope{WorkerID: &aliceID})
	h.env.SeedTimeEntry(t, h.matter, h.alice, 60, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	h.env.SeedTimeEntry(t, h.matter, h.bob, 60, time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC))

	_, err := h.svc.GenerateInvoice(context.Background(), invoicedomain.GenerateRequest{CaseID: h.matter.ID})
	require.ErrorIs(t, err, invoicedomain.ErrUnresolvedRate)
	assert.Zero(t, h.count(t, &invoicedomain.Invoice{}))
	assert.Zero(t, h.count(t, &invoicedomain.InvoiceTimeEntry{}))
}

func TestPriceTimeEntriesDefersWorkersResolvedLater(t *testing.T) {
	h := newHarness(t, config.UnresolvedRateBlock)
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)
	prices := pricing{
		base:       h.eur,
		currencies: map[snowflake.ID]currencydomain.Currency{h.eur.ID: h.eur},
		rates: map[snowflake.ID]*ratedomain.BillingRate{
			h.alice.ID: {ID: 7, Amount: dec("60"), CurrencyID: h.eur.ID},
		},
	}
	entries := []timeentrydomain.TimeEntry{
		{ID: 101, WorkerID: h.alice.ID, Minutes: 30},
		{ID: 102, WorkerID: h.bob.ID, Minutes: 45},
	}
	now := h.env.Clock.Now()

	lines, warnings, deferred, err := h.svc.priceTimeEntries(1, entries, prices, true, now)
	require.NoError(t, err, "a worker first seen inside the transaction must not trip the block policy")
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Total.Equal(dec("30")), "total %s", lines[0].Total)
	assert.Empty(t, warnings)
	assert.Equal(t, 1, deferred)

	prices.rates[h.bob.ID] = nil
	_, _, _, err = h.svc.priceTimeEntries(1, entries, prices, true, now)
	require.ErrorIs(t, err, invoicedomain.ErrUnresolvedRate)
}

func TestGenerateInvoiceConvertsForeignRates(t *testing.T) {
	h := newHarness(t, "")
	h.eur = h.env.SeedCurrency(t, "EUR", "1", true)
	usd := h.env.SeedCurrency(t, "USD", "1.1", false)
	h.env.SeedRate(t, "110", usd, billingtest.RateScope{})
	h.env.SeedTimeEntry(t, h.matter, h.bob, 60, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	res := h.generate(t, invoicedomain.GenerateRequest{})
	require.Len(t, res.Invoice.TimeEntries, 1)
	assert.True(t, res.Invoice.TimeEntries[0].RateAmount.Equal(dec("100")))
	assert.True(t, res.Invoice.TotalAmount.Equal(dec("100")))
	assert.Equal(t, h.eur.ID, res.Invoice.CurrencyID)
}

func TestGenerateInvoiceRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	ctx := context.Background()

	_, ok, err := h.locker.TryLock(ctx, "invoice:generate:"+h.matter.ID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.svc.GenerateInvoice(ctx, invoicedomain.GenerateRequest{CaseID: h.matter.ID})
	require.ErrorIs(t, err, invoicedomain.ErrGenerationInProgress)
	assert.Zero(t, h.count(t, &invoicedomain.Invoice{}))
}

func TestGenerateInvoiceAutoSend(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)

	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true, AutoSend: true})
	require.NoError(t, res.DispatchError)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, res.Invoice.Status)
	assert.NotNil(t, res.Invoice.SentAt)

	require.Equal(t, 1, h.dispatcher.Count())
	sent := h.dispatcher.Requests[0]
	assert.Equal(t, []string{"billing@acme.test"}, sent.To)
	assert.Equal(t, []string{"alice@firm.test"}, sent.Cc)
	assert.Equal(t, "Acme v. Globex", sent.CaseTitle)
}

func TestGenerateInvoiceAutoSendFailureKeepsDraft(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	h.dispatcher.Err = errors.New("smtp unavailable")

	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true, AutoSend: true})
	require.Error(t, res.DispatchError)
	assert.ErrorIs(t, res.DispatchError, invoicedomain.ErrDispatchFailure)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, res.Invoice.Status)
	assert.True(t, res.Invoice.TotalAmount.Equal(dec("169")))

	stored, err := h.svc.GetByID(context.Background(), res.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, stored.Status)
	assert.Nil(t, stored.SentAt)
}

func TestSendInvoiceWithoutRecipient(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	require.NoError(t, h.env.DB.Model(&casedomain.Client{}).Where("id = ?", h.client.ID).Update("email", "").Error)
	res := h.generate(t, invoicedomain.GenerateRequest{})

	details, err := h.svc.SendInvoice(context.Background(), res.Invoice.ID.String(), "")
	require.ErrorIs(t, err, invoicedomain.ErrDispatchFailure)
	require.ErrorIs(t, err, invoicedomain.ErrMissingRecipient)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, details.Status)
	assert.Zero(t, h.dispatcher.Count())
}

func TestRecomputeTotalsIsIdempotent(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	id := res.Invoice.ID.String()
	ctx := context.Background()

	h.env.Clock.Advance(time.Hour)
	first, err := h.svc.RecomputeTotals(ctx, id)
	require.NoError(t, err)
	h.env.Clock.Advance(time.Hour)
	second, err := h.svc.RecomputeTotals(ctx, id)
	require.NoError(t, err)

	assert.True(t, first.Totals().Equal(second.Totals()))
	assert.True(t, first.Totals().Equal(res.Invoice.Totals()))
	assert.True(t, second.UpdatedAt.Equal(res.Invoice.UpdatedAt), "unchanged lines must not rewrite the invoice")
}

func TestUpdatePricingRederivesTotals(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	ctx := context.Background()

	discount, tax := dec("10"), dec("21")
	updated, err := h.svc.UpdatePricing(ctx, res.Invoice.ID.String(), invoicedomain.UpdatePricingRequest{
		DiscountPercent: &discount,
		TaxRate:         &tax,
	})
	require.NoError(t, err)
	assert.True(t, updated.DiscountAmount.Equal(dec("16.9")), "discount %s", updated.DiscountAmount)
	assert.True(t, updated.TaxAmount.Equal(dec("31.94")), "tax %s", updated.TaxAmount)
	assert.True(t, updated.TotalAmount.Equal(dec("184.04")), "total %s", updated.TotalAmount)

	_, err = h.svc.SendInvoice(ctx, res.Invoice.ID.String(), "")
	require.NoError(t, err)
	_, err = h.svc.UpdatePricing(ctx, res.Invoice.ID.String(), invoicedomain.UpdatePricingRequest{DiscountPercent: &discount})
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotDraft)
}

func TestCancelInvoiceFreezesIt(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	id := res.Invoice.ID.String()
	ctx := context.Background()

	cancelled, err := h.svc.CancelInvoice(ctx, id, "", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = h.svc.CancelInvoice(ctx, id, "", "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceImmutable)
	_, err = h.svc.SendInvoice(ctx, id, "")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceImmutable)
	_, err = h.svc.RecomputeTotals(ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceImmutable)
}

func TestCancelInvoiceWithPaymentsIsRejected(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	h.insertPayment(t, res.Invoice, "20", paymentdomain.StatusCompleted)

	_, err := h.svc.CancelInvoice(context.Background(), res.Invoice.ID.String(), "", "")
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceHasPayments)
}

func TestGetBillingSummary(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	ctx := context.Background()

	first := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	h.env.SeedTimeEntry(t, h.matter, h.alice, 60, time.Date(2024, 1, 25, 9, 0, 0, 0, time.UTC))
	second := h.generate(t, invoicedomain.GenerateRequest{})
	_, err := h.svc.CancelInvoice(ctx, second.Invoice.ID.String(), "", "")
	require.NoError(t, err)
	h.insertPayment(t, first.Invoice, "100", paymentdomain.StatusCompleted)
	h.insertPayment(t, first.Invoice, "30", paymentdomain.StatusRefunded)

	summary, err := h.svc.GetBillingSummary(ctx, h.matter.ID.String(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.InvoiceCount)
	assert.Equal(t, 0, summary.PaidInvoiceCount)
	assert.True(t, summary.TotalBilled.Equal(dec("169")), "billed %s", summary.TotalBilled)
	assert.True(t, summary.TotalPaid.Equal(dec("100")), "paid %s", summary.TotalPaid)
	assert.True(t, summary.Outstanding.Equal(dec("69")))
	assert.Equal(t, "EUR", summary.Currency)

	empty, err := h.svc.GetBillingSummary(ctx, h.matter.ID.String(), 2023)
	require.NoError(t, err)
	assert.Zero(t, empty.InvoiceCount)

	_, err = h.svc.GetBillingSummary(ctx, h.matter.ID.String(), 12000)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidYear)
}

func TestListInvoicesPagesNewestFirst(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	ctx := context.Background()

	first := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	h.env.SeedTimeEntry(t, h.matter, h.alice, 60, time.Date(2024, 1, 25, 9, 0, 0, 0, time.UTC))
	second := h.generate(t, invoicedomain.GenerateRequest{})

	req := invoicedomain.ListInvoiceRequest{CaseID: &h.matter.ID}
	req.PageSize = 1
	page, err := h.svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, second.Invoice.ID, page.Invoices[0].ID)
	require.True(t, page.HasMore)

	req.PageToken = page.NextPageToken
	page, err = h.svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, first.Invoice.ID, page.Invoices[0].ID)
	assert.False(t, page.HasMore)

	req.PageToken = "not-a-token"
	_, err = h.svc.List(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidPageToken)
}

func TestListInvoicesDerivesOverdue(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	ctx := context.Background()
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})
	_, err := h.svc.SendInvoice(ctx, res.Invoice.ID.String(), "")
	require.NoError(t, err)

	h.env.Clock.Set(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	overdue := invoicedomain.InvoiceStatusOverdue
	page, err := h.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: &overdue})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, page.Invoices[0].EffectiveStatus)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, page.Invoices[0].Status)
}

func TestRenderPDFNamesDocument(t *testing.T) {
	h := newHarness(t, "")
	h.seedScenario(t)
	res := h.generate(t, invoicedomain.GenerateRequest{IncludeExpenses: true})

	_, name, err := h.svc.RenderPDF(context.Background(), res.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "inv-2024-0001-acme-v-globex.pdf", name)

	_, _, err = h.svc.RenderPDF(context.Background(), "nope")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidInvoiceID)
}

func (h *harness) insertPayment(t *testing.T, inv invoicedomain.InvoiceDetails, amount string, status paymentdomain.PaymentStatus) {
	t.Helper()
	now := h.env.Clock.Now()
	require.NoError(t, h.env.DB.Create(&paymentdomain.Payment{
		ID:          h.env.Node.Generate(),
		PaymentUID:  uuid.New(),
		InvoiceID:   inv.ID,
		Amount:      dec(amount),
		CurrencyID:  inv.CurrencyID,
		Method:      paymentdomain.MethodBankTransfer,
		Status:      status,
		PaymentDate: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error)
}
