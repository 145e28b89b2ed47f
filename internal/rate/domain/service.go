package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Resolver picks the billing rate for one time entry. A nil rate with a nil
// error means no rate applies; the caller decides how to report the gap.
type Resolver interface {
	ResolveRate(ctx context.Context, workerID snowflake.ID, caseCategory string) (*BillingRate, error)
}

type CreateRequest struct {
	Name         string `json:"name"`
	RateType     string `json:"rate_type"`
	Amount       string `json:"amount"`
	CurrencyID   string `json:"currency_id"`
	WorkerID     string `json:"worker_id,omitempty"`
	CaseCategory string `json:"case_category,omitempty"`
}

type Service interface {
	Resolver

	Create(ctx context.Context, req CreateRequest) (BillingRate, error)
	GetByID(ctx context.Context, id snowflake.ID) (BillingRate, error)
	List(ctx context.Context, activeOnly bool) ([]BillingRate, error)
	UpdateAmount(ctx context.Context, id snowflake.ID, amount string) (BillingRate, error)
	Deactivate(ctx context.Context, id snowflake.ID) (BillingRate, error)
}

var (
	ErrRateNotFound    = errors.New("billing_rate_not_found")
	ErrInvalidName     = errors.New("invalid_rate_name")
	ErrInvalidRateType = errors.New("invalid_rate_type")
	ErrInvalidAmount   = errors.New("invalid_rate_amount")
	ErrInvalidCurrency = errors.New("invalid_rate_currency")
	ErrInvalidWorker   = errors.New("invalid_rate_worker")
	ErrRateImmutable   = errors.New("billing_rate_immutable")
)
