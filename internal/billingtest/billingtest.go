// Package billingtest builds an in-memory database and seed data shared by
// the billing service tests.
package billingtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	casedomain "github.com/smallbiznis/casebill/internal/caseregistry/domain"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/internal/config"
	currencydomain "github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/smallbiznis/casebill/internal/events"
	expensedomain "github.com/smallbiznis/casebill/internal/expense/domain"
	invoicedomain "github.com/smallbiznis/casebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/casebill/internal/payment/domain"
	ratedomain "github.com/smallbiznis/casebill/internal/rate/domain"
	recurringdomain "github.com/smallbiznis/casebill/internal/recurring/domain"
	timeentrydomain "github.com/smallbiznis/casebill/internal/timeentry/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// SetupDB opens a private in-memory sqlite database with every billing table.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(
		&currencydomain.Currency{},
		&casedomain.Worker{},
		&casedomain.Client{},
		&casedomain.Case{},
		&ratedomain.BillingRate{},
		&timeentrydomain.TimeEntry{},
		&expensedomain.ExpenseCategory{},
		&expensedomain.Expense{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceTimeEntry{},
		&invoicedomain.InvoiceExpenseItem{},
		&invoicedomain.InvoiceSequence{},
		&paymentdomain.Payment{},
		&recurringdomain.RecurringInvoice{},
		&events.BillingEvent{},
		&auditdomain.AuditLog{},
	))
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_currencies_single_base ON currencies (is_base_currency) WHERE is_base_currency`,
	).Error)
	return conn
}

// Env bundles the handles most service tests need.
type Env struct {
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock *clock.FakeClock
}

func NewEnv(t *testing.T, now time.Time) *Env {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Env{
		DB:    SetupDB(t),
		Node:  node,
		Clock: clock.NewFakeClock(now.UTC()),
	}
}

// Billing returns a billing config holder with the unresolved rate policy set.
func Billing(policy string) *config.BillingConfigHolder {
	cfg := config.DefaultBillingConfig()
	if policy != "" {
		cfg.UnresolvedRatePolicy = policy
	}
	return config.NewStaticBillingConfigHolder(cfg)
}

func (e *Env) SeedCurrency(t *testing.T, code, rate string, base bool) currencydomain.Currency {
	t.Helper()
	now := e.Clock.Now()
	item := currencydomain.Currency{
		ID:             e.Node.Generate(),
		Code:           code,
		Name:           code,
		ExchangeRate:   decimal.RequireFromString(rate),
		IsBaseCurrency: base,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

func (e *Env) SeedWorker(t *testing.T, name, email string) casedomain.Worker {
	t.Helper()
	item := casedomain.Worker{
		ID:        e.Node.Generate(),
		Name:      name,
		Email:     email,
		Role:      "lawyer",
		IsActive:  true,
		CreatedAt: e.Clock.Now(),
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

func (e *Env) SeedClient(t *testing.T, name, email string) casedomain.Client {
	t.Helper()
	item := casedomain.Client{
		ID:        e.Node.Generate(),
		Name:      name,
		Email:     email,
		CreatedAt: e.Clock.Now(),
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

func (e *Env) SeedCase(t *testing.T, client casedomain.Client, title, category string, assigned *casedomain.Worker) casedomain.Case {
	t.Helper()
	item := casedomain.Case{
		ID:        e.Node.Generate(),
		Title:     title,
		Category:  category,
		ClientID:  client.ID,
		CreatedAt: e.Clock.Now(),
	}
	if assigned != nil {
		id := assigned.ID
		item.AssignedWorkerID = &id
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

// RateScope narrows a seeded rate. A zero scope seeds a global default.
type RateScope struct {
	WorkerID     *snowflake.ID
	CaseCategory *string
}

func (e *Env) SeedRate(t *testing.T, amount string, currency currencydomain.Currency, scope RateScope) ratedomain.BillingRate {
	t.Helper()
	now := e.Clock.Now()
	item := ratedomain.BillingRate{
		ID:           e.Node.Generate(),
		Name:         "rate " + amount,
		RateType:     ratedomain.RateTypeHourly,
		Amount:       decimal.RequireFromString(amount),
		CurrencyID:   currency.ID,
		WorkerID:     scope.WorkerID,
		CaseCategory: scope.CaseCategory,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

// SeedTimeEntry records minutes of work at the given instant.
func (e *Env) SeedTimeEntry(t *testing.T, c casedomain.Case, w casedomain.Worker, minutes int, at time.Time) timeentrydomain.TimeEntry {
	t.Helper()
	item := timeentrydomain.TimeEntry{
		ID:          e.Node.Generate(),
		CaseID:      c.ID,
		WorkerID:    w.ID,
		Minutes:     minutes,
		Description: fmt.Sprintf("%d minutes of work", minutes),
		CreatedAt:   at.UTC(),
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

func (e *Env) SeedCategory(t *testing.T, name, markup string, billable bool) expensedomain.ExpenseCategory {
	t.Helper()
	item := expensedomain.ExpenseCategory{
		ID:                      e.Node.Generate(),
		Name:                    name,
		IsBillable:              billable,
		DefaultMarkupPercentage: decimal.RequireFromString(markup),
		IsActive:                true,
		CreatedAt:               e.Clock.Now(),
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

// ExpenseSeed describes one expense row; Markup defaults to zero.
type ExpenseSeed struct {
	Case       casedomain.Case
	Category   expensedomain.ExpenseCategory
	Worker     casedomain.Worker
	Currency   currencydomain.Currency
	Amount     string
	Markup     string
	IsBillable bool
	Date       time.Time
}

func (e *Env) SeedExpense(t *testing.T, seed ExpenseSeed) expensedomain.Expense {
	t.Helper()
	markup := decimal.Zero
	if seed.Markup != "" {
		markup = decimal.RequireFromString(seed.Markup)
	}
	amount := decimal.RequireFromString(seed.Amount)
	item := expensedomain.Expense{
		ID:               e.Node.Generate(),
		CaseID:           seed.Case.ID,
		CategoryID:       seed.Category.ID,
		WorkerID:         seed.Worker.ID,
		Description:      seed.Category.Name + " expense",
		Amount:           amount,
		CurrencyID:       seed.Currency.ID,
		MarkupPercentage: markup,
		BillableAmount:   expensedomain.BillableFor(amount, markup),
		IsBillable:       seed.IsBillable,
		ExpenseDate:      clock.StartOfDay(seed.Date),
		CreatedAt:        e.Clock.Now(),
	}
	require.NoError(t, e.DB.Create(&item).Error)
	return item
}

// RecordingDispatcher captures dispatch requests and fails on demand.
type RecordingDispatcher struct {
	mu       sync.Mutex
	Requests []invoicedomain.DispatchRequest
	Err      error
}

func (d *RecordingDispatcher) Dispatch(_ context.Context, req invoicedomain.DispatchRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Requests = append(d.Requests, req)
	return nil
}

func (d *RecordingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
