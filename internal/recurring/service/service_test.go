package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/casebill/internal/authorization"
	"github.com/smallbiznis/casebill/internal/billingtest"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	caseservice "github.com/smallbiznis/casebill/internal/caseregistry/service"
	"github.com/smallbiznis/casebill/internal/events"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	"github.com/smallbiznis/casebill/internal/recurring/domain"
	"github.com/smallbiznis/casebill/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoiceSvc struct {
	invoicedomain.Service

	mu        sync.Mutex
	node      *snowflake.Node
	failCases map[snowflake.ID]error
	templates map[string]invoicedomain.InvoiceDetails
	dispatch  error
	requests  []invoicedomain.GenerateRequest
}

func (f *fakeInvoiceSvc) GenerateInvoice(_ context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.failCases[req.CaseID]; err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	res := invoicedomain.GenerateResult{}
	res.Invoice.ID = f.node.Generate()
	res.Invoice.InvoiceNumber = "INV-2024-0001"
	res.Invoice.CaseID = req.CaseID
	if f.dispatch != nil {
		res.DispatchError = &invoicedomain.DispatchError{Err: f.dispatch}
	}
	return res, nil
}

func (f *fakeInvoiceSvc) GetByID(_ context.Context, id string) (invoicedomain.InvoiceDetails, error) {
	details, ok := f.templates[id]
	if !ok {
		return invoicedomain.InvoiceDetails{}, invoicedomain.ErrInvoiceNotFound
	}
	return details, nil
}

type fixture struct {
	env      *billingtest.Env
	invoices *fakeInvoiceSvc
	svc      domain.Service
	client   casedomain.Client
}

func newFixture(t *testing.T, today time.Time) *fixture {
	t.Helper()
	env := billingtest.NewEnv(t, today)
	log := zap.NewNop()
	invoices := &fakeInvoiceSvc{
		node:      env.Node,
		failCases: map[snowflake.ID]error{},
		templates: map[string]invoicedomain.InvoiceDetails{},
	}
	svc := NewService(Params{
		DB:    env.DB,
		Log:   log,
		GenID: env.Node,
		Clock: env.Clock,
		Directory: caseservice.NewDirectory(caseservice.Params{
			Log:     log,
			Cases:   repository.ProvideStore[casedomain.Case](env.DB),
			Clients: repository.ProvideStore[casedomain.Client](env.DB),
			Workers: repository.ProvideStore[casedomain.Worker](env.DB),
		}),
		InvoiceSvc: invoices,
		Events:     events.NewOutboxPublisher(env.DB, env.Node, env.Clock),
	})
	return &fixture{
		env:      env,
		invoices: invoices,
		svc:      svc,
		client:   env.SeedClient(t, "Acme GmbH", "billing@acme.test"),
	}
}

func (f *fixture) create(t *testing.T, req domain.CreateRequest) domain.RecurringInvoice {
	t.Helper()
	item, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return item
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) domain.RecurringInvoice {
	t.Helper()
	var item domain.RecurringInvoice
	require.NoError(t, f.env.DB.Where("id = ?", id).First(&item).Error)
	return item
}

func TestRunDueAdvancesByFixedPeriod(t *testing.T) {
	f := newFixture(t, time.Date(2024, 1, 31, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Retainer", "corporate", nil)
	item := f.create(t, domain.CreateRequest{
		CaseID:    matter.ID.String(),
		Frequency: "Monthly",
		StartDate: "2024-01-31",
	})

	results, err := f.svc.RunDue(context.Background(), f.env.Clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeGenerated, results[0].Outcome)
	assert.Equal(t, billingtest.Day(2024, 3, 1), results[0].NextInvoiceDate.UTC())

	require.Len(t, f.invoices.requests, 1)
	req := f.invoices.requests[0]
	assert.Equal(t, billingtest.Day(2024, 1, 1), req.PeriodStart.UTC())
	assert.Equal(t, billingtest.Day(2024, 1, 31), req.PeriodEnd.UTC())
	assert.True(t, req.AutoSend)
	assert.True(t, req.IncludeExpenses)
	assert.Equal(t, invoicedomain.SourceRecurring, req.Source)
	assert.Equal(t, authorization.SystemActor, req.Actor)

	stored := f.reload(t, item.ID)
	assert.Equal(t, billingtest.Day(2024, 3, 1), stored.NextInvoiceDate.UTC())
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.LastInvoiceID)
	assert.Equal(t, results[0].InvoiceID, stored.LastInvoiceID.String())

	// nothing is due again until the new date
	results, err = f.svc.RunDue(context.Background(), billingtest.Day(2024, 2, 29))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunDueIsolatesFailures(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC))
	broken := f.env.SeedCase(t, f.client, "Broken", "litigation", nil)
	healthy := f.env.SeedCase(t, f.client, "Healthy", "litigation", nil)
	f.invoices.failCases[broken.ID] = invoicedomain.ErrNoUnbilledWork

	failing := f.create(t, domain.CreateRequest{CaseID: broken.ID.String(), Frequency: "weekly", StartDate: "2024-01-25"})
	ok := f.create(t, domain.CreateRequest{CaseID: healthy.ID.String(), Frequency: "weekly", StartDate: "2024-02-01"})

	results, err := f.svc.RunDue(context.Background(), f.env.Clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, failing.ID.String(), results[0].TemplateID)
	assert.Equal(t, domain.OutcomeFailed, results[0].Outcome)
	assert.Contains(t, results[0].Error, invoicedomain.ErrNoUnbilledWork.Error())
	assert.Equal(t, domain.OutcomeGenerated, results[1].Outcome)

	stalled := f.reload(t, failing.ID)
	assert.Equal(t, billingtest.Day(2024, 1, 25), stalled.NextInvoiceDate.UTC())
	require.NotNil(t, stalled.LastError)
	assert.Contains(t, *stalled.LastError, "no_unbilled_work")

	advanced := f.reload(t, ok.ID)
	assert.Equal(t, billingtest.Day(2024, 2, 8), advanced.NextInvoiceDate.UTC())
	assert.Nil(t, advanced.LastError)

	var failedEvents int64
	require.NoError(t, f.env.DB.Model(&events.BillingEvent{}).Where("event_type = ?", events.RecurringFailed).Count(&failedEvents).Error)
	assert.EqualValues(t, 1, failedEvents)
}

func TestRunDueDeactivatesPastEndDate(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Short matter", "litigation", nil)
	end := "2024-03-20"
	item := f.create(t, domain.CreateRequest{
		CaseID:    matter.ID.String(),
		Frequency: "monthly",
		StartDate: "2024-03-01",
		EndDate:   &end,
	})

	results, err := f.svc.RunDue(context.Background(), f.env.Clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Deactivated)

	stored := f.reload(t, item.ID)
	assert.False(t, stored.IsActive)

	active, err := f.svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRunDueKeepsDispatchFailureAsGenerated(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Retainer", "corporate", nil)
	f.invoices.dispatch = errors.New("smtp down")
	item := f.create(t, domain.CreateRequest{CaseID: matter.ID.String(), Frequency: "quarterly", StartDate: "2024-02-01"})

	results, err := f.svc.RunDue(context.Background(), f.env.Clock.Now())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeGenerated, results[0].Outcome)
	assert.Contains(t, results[0].DispatchError, "smtp down")
	assert.Equal(t, billingtest.Day(2024, 5, 1), f.reload(t, item.ID).NextInvoiceDate.UTC())
}

func TestRunDueSkipsInactiveTemplates(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Paused", "corporate", nil)
	item := f.create(t, domain.CreateRequest{CaseID: matter.ID.String(), Frequency: "weekly", StartDate: "2024-01-01"})

	paused, err := f.svc.SetActive(context.Background(), item.ID.String(), false, "")
	require.NoError(t, err)
	assert.False(t, paused.IsActive)

	results, err := f.svc.RunDue(context.Background(), f.env.Clock.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, f.invoices.requests)
}

func TestCreateCopiesTemplatePricing(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Retainer", "corporate", nil)
	other := f.env.SeedCase(t, f.client, "Other", "corporate", nil)

	template := invoicedomain.InvoiceDetails{}
	template.ID = f.env.Node.Generate()
	template.CaseID = matter.ID
	template.DiscountPercent = decimal.RequireFromString("5")
	template.TaxRate = decimal.RequireFromString("21")
	f.invoices.templates[template.ID.String()] = template
	templateID := template.ID.String()

	item := f.create(t, domain.CreateRequest{
		CaseID:            matter.ID.String(),
		TemplateInvoiceID: &templateID,
		Frequency:         "monthly",
		StartDate:         "2024-02-15",
	})
	require.NotNil(t, item.TemplateInvoiceID)
	assert.Equal(t, template.ID, *item.TemplateInvoiceID)
	assert.True(t, item.DiscountPercent.Equal(decimal.RequireFromString("5")))
	require.NotNil(t, item.TaxRate)
	assert.True(t, item.TaxRate.Equal(decimal.RequireFromString("21")))
	assert.Equal(t, billingtest.Day(2024, 2, 15), item.NextInvoiceDate)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{
		CaseID:            other.ID.String(),
		TemplateInvoiceID: &templateID,
		Frequency:         "monthly",
		StartDate:         "2024-02-15",
	})
	assert.ErrorIs(t, err, domain.ErrTemplateCaseMismatch)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t, time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC))
	matter := f.env.SeedCase(t, f.client, "Retainer", "corporate", nil)
	caseID := matter.ID.String()
	before := "2024-01-01"
	missing := f.env.Node.Generate().String()

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"unknown case", domain.CreateRequest{CaseID: f.env.Node.Generate().String(), Frequency: "weekly", StartDate: "2024-02-01"}, domain.ErrInvalidCase},
		{"bad frequency", domain.CreateRequest{CaseID: caseID, Frequency: "daily", StartDate: "2024-02-01"}, domain.ErrInvalidFrequency},
		{"bad start", domain.CreateRequest{CaseID: caseID, Frequency: "weekly", StartDate: "02/01/2024"}, domain.ErrInvalidStartDate},
		{"end before start", domain.CreateRequest{CaseID: caseID, Frequency: "weekly", StartDate: "2024-02-01", EndDate: &before}, domain.ErrInvalidEndDate},
		{"discount over 100", domain.CreateRequest{CaseID: caseID, Frequency: "weekly", StartDate: "2024-02-01", DiscountPercent: "120"}, domain.ErrInvalidDiscount},
		{"missing template", domain.CreateRequest{CaseID: caseID, Frequency: "weekly", StartDate: "2024-02-01", TemplateInvoiceID: &missing}, domain.ErrTemplateNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFrequencyDays(t *testing.T) {
	assert.Equal(t, 7, domain.FrequencyWeekly.Days())
	assert.Equal(t, 30, domain.FrequencyMonthly.Days())
	assert.Equal(t, 90, domain.FrequencyQuarterly.Days())
	assert.Equal(t, 365, domain.FrequencyYearly.Days())
	assert.False(t, domain.Frequency("daily").Valid())
}
