package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RateType string

const (
	RateTypeHourly      RateType = "hourly"
	RateTypeFixed       RateType = "fixed"
	RateTypeContingency RateType = "contingency"
)

func (t RateType) Valid() bool {
	switch t {
	case RateTypeHourly, RateTypeFixed, RateTypeContingency:
		return true
	default:
		return false
	}
}

// BillingRate is a price per hour of work. A rate scoped to a worker overrides
// a rate scoped to a case category, which overrides the global default.
type BillingRate struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:text;not null" json:"name"`
	RateType     RateType        `gorm:"type:text;not null" json:"rate_type"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	CurrencyID   snowflake.ID    `gorm:"not null" json:"currency_id"`
	WorkerID     *snowflake.ID   `gorm:"index" json:"worker_id,omitempty"`
	CaseCategory *string         `gorm:"type:text;index" json:"case_category,omitempty"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (BillingRate) TableName() string { return "billing_rates" }

// Scope names the precedence tier a rate was resolved from.
func (r BillingRate) Scope() string {
	switch {
	case r.WorkerID != nil:
		return "worker"
	case r.CaseCategory != nil:
		return "category"
	default:
		return "global"
	}
}
