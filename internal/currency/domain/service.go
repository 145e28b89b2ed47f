package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	ExchangeRate string `json:"exchange_rate"`
	IsBase       bool   `json:"is_base_currency"`
}

type Service interface {
	GetBaseCurrency(ctx context.Context) (Currency, error)
	GetByID(ctx context.Context, id snowflake.ID) (Currency, error)
	Convert(ctx context.Context, amount decimal.Decimal, fromID, toID snowflake.ID) (decimal.Decimal, error)
	List(ctx context.Context) ([]Currency, error)

	Create(ctx context.Context, req CreateRequest) (Currency, error)
	SetBase(ctx context.Context, id snowflake.ID) (Currency, error)
	UpdateExchangeRate(ctx context.Context, id snowflake.ID, rate string) (Currency, error)
	Deactivate(ctx context.Context, id snowflake.ID) (Currency, error)
}

var (
	ErrNotConfigured        = errors.New("base_currency_not_configured")
	ErrInvariantViolation   = errors.New("currency_invariant_violation")
	ErrCurrencyNotFound     = errors.New("currency_not_found")
	ErrInvalidCode          = errors.New("invalid_currency_code")
	ErrInvalidName          = errors.New("invalid_currency_name")
	ErrInvalidExchangeRate  = errors.New("invalid_exchange_rate")
	ErrDuplicateCode        = errors.New("currency_code_exists")
	ErrBaseCurrencyReadOnly = errors.New("base_currency_read_only")
)
