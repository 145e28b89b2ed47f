package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/casebill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/casebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/casebill/internal/audit/service"
	"github.com/smallbiznis/casebill/internal/billingtest"
	"github.com/smallbiznis/casebill/internal/currency/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *billingtest.Env) {
	t.Helper()
	env := billingtest.NewEnv(t, time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{
		DB:    env.DB,
		Log:   zap.NewNop(),
		GenID: env.Node,
		Repo:  auditrepository.Provide(),
		Clock: env.Clock,
	})
	svc := NewService(Params{
		DB:       env.DB,
		Log:      zap.NewNop(),
		GenID:    env.Node,
		Clock:    env.Clock,
		AuditSvc: audit,
	})
	return svc, env
}

func TestGetBaseCurrencyNotConfigured(t *testing.T) {
	svc, env := newTestService(t)
	env.SeedCurrency(t, "USD", "1.1", false)

	_, err := svc.GetBaseCurrency(context.Background())
	require.ErrorIs(t, err, domain.ErrNotConfigured)

	var count int64
	require.NoError(t, env.DB.Model(&domain.Currency{}).Where("is_base_currency = ?", true).Count(&count).Error)
	assert.Zero(t, count, "a missing base must not be provisioned")
}

func TestGetBaseCurrencyRejectsTwoBases(t *testing.T) {
	svc, env := newTestService(t)
	require.NoError(t, env.DB.Exec(`DROP INDEX ux_currencies_single_base`).Error)
	env.SeedCurrency(t, "EUR", "1", true)
	env.SeedCurrency(t, "USD", "1", true)

	_, err := svc.GetBaseCurrency(context.Background())
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestCreateEnforcesSingleBase(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()

	eur, err := svc.Create(ctx, domain.CreateRequest{Code: "eur", Name: "Euro", Symbol: "€", IsBase: true})
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Code)
	assert.True(t, eur.ExchangeRate.Equal(decimal.NewFromInt(1)))

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "USD", Name: "US Dollar", IsBase: true})
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	usd, err := svc.Create(ctx, domain.CreateRequest{Code: "USD", Name: "US Dollar", ExchangeRate: "1.1"})
	require.NoError(t, err)
	_, err = svc.SetBase(ctx, usd.ID)
	require.ErrorIs(t, err, domain.ErrInvariantViolation)

	base, err := svc.GetBaseCurrency(ctx)
	require.NoError(t, err)
	assert.Equal(t, eur.ID, base.ID)

	var logs []auditdomain.AuditLog
	require.NoError(t, env.DB.Where("action = ?", "currency.created").Find(&logs).Error)
	assert.Len(t, logs, 2)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	env.SeedCurrency(t, "EUR", "1", true)

	_, err := svc.Create(ctx, domain.CreateRequest{Code: "EURO", Name: "Euro"})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	_, err = svc.Create(ctx, domain.CreateRequest{Code: "GBP", Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = svc.Create(ctx, domain.CreateRequest{Code: "GBP", Name: "Pound", ExchangeRate: "0"})
	assert.ErrorIs(t, err, domain.ErrInvalidExchangeRate)
	_, err = svc.Create(ctx, domain.CreateRequest{Code: "eur", Name: "Euro again", ExchangeRate: "1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestConvertThroughBase(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	eur := env.SeedCurrency(t, "EUR", "1", true)
	usd := env.SeedCurrency(t, "USD", "1.1", false)
	gbp := env.SeedCurrency(t, "GBP", "0.85", false)

	got, err := svc.Convert(ctx, decimal.NewFromInt(100), eur.ID, usd.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("110")), got.String())

	got, err = svc.Convert(ctx, decimal.NewFromInt(110), usd.ID, eur.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(100)), got.String())

	got, err = svc.Convert(ctx, decimal.NewFromInt(110), usd.ID, gbp.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("85")), got.String())

	_, err = svc.Convert(ctx, decimal.NewFromInt(1), usd.ID, env.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrCurrencyNotFound)
}

func TestBaseCurrencyIsReadOnly(t *testing.T) {
	svc, env := newTestService(t)
	ctx := context.Background()
	eur := env.SeedCurrency(t, "EUR", "1", true)
	usd := env.SeedCurrency(t, "USD", "1.1", false)

	_, err := svc.UpdateExchangeRate(ctx, eur.ID, "2")
	assert.ErrorIs(t, err, domain.ErrBaseCurrencyReadOnly)
	_, err = svc.Deactivate(ctx, eur.ID)
	assert.ErrorIs(t, err, domain.ErrBaseCurrencyReadOnly)

	updated, err := svc.UpdateExchangeRate(ctx, usd.ID, "1.25")
	require.NoError(t, err)
	assert.True(t, updated.ExchangeRate.Equal(decimal.RequireFromString("1.25")))

	deactivated, err := svc.Deactivate(ctx, usd.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	stored, err := svc.GetByID(ctx, usd.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.True(t, stored.ExchangeRate.Equal(decimal.RequireFromString("1.25")))
}

func TestConvertAmountSameCurrency(t *testing.T) {
	eur := domain.Currency{ID: 1, ExchangeRate: decimal.NewFromInt(1)}
	amount := decimal.RequireFromString("12.345678")
	assert.True(t, domain.ConvertAmount(amount, eur, eur).Equal(amount))
}
