// Package domain holds the currency registry. Every exchange rate is quoted
// against a single base currency.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Currency struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	Code   string       `gorm:"type:varchar(3);not null;uniqueIndex" json:"code"`
	Name   string       `gorm:"type:text;not null" json:"name"`
	Symbol string       `gorm:"type:text" json:"symbol"`
	// ExchangeRate is units of this currency per one unit of the base currency.
	ExchangeRate   decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"exchange_rate"`
	IsBaseCurrency bool            `gorm:"not null;default:false;index" json:"is_base_currency"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Currency) TableName() string { return "currencies" }

// ConvertAmount converts through the base currency: amount / from.rate * to.rate.
// Results are carried at six decimal places; callers round when finalizing.
func ConvertAmount(amount decimal.Decimal, from, to Currency) decimal.Decimal {
	if from.ID == to.ID {
		return amount
	}
	if from.ExchangeRate.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(to.ExchangeRate).Div(from.ExchangeRate).Round(6)
}
