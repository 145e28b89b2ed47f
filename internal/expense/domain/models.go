package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ExpenseCategory struct {
	ID                      snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                    string          `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Description             string          `gorm:"type:text" json:"description"`
	IsBillable              bool            `gorm:"not null;default:true" json:"is_billable"`
	DefaultMarkupPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"default_markup_percentage"`
	IsActive                bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt               time.Time       `gorm:"not null" json:"created_at"`
}

func (ExpenseCategory) TableName() string { return "expense_categories" }

// Expense is a cost incurred on a case. BillableAmount is computed once at
// creation and never recomputed, so later markup changes do not reprice it.
type Expense struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	CaseID           snowflake.ID    `gorm:"not null;index" json:"case_id"`
	CategoryID       snowflake.ID    `gorm:"not null;index" json:"category_id"`
	WorkerID         snowflake.ID    `gorm:"not null" json:"worker_id"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	CurrencyID       snowflake.ID    `gorm:"not null" json:"currency_id"`
	MarkupPercentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"markup_percentage"`
	BillableAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"billable_amount"`
	IsBillable       bool            `gorm:"not null" json:"is_billable"`
	IsBilled         bool            `gorm:"not null;default:false;index" json:"is_billed"`
	ExpenseDate      time.Time       `gorm:"not null;index" json:"expense_date"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
}

func (Expense) TableName() string { return "expenses" }

var hundred = decimal.NewFromInt(100)

// BillableFor applies markup to a raw amount, rounded to cents.
func BillableFor(amount, markupPercentage decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercentage.Div(hundred))
	return amount.Mul(factor).Round(2)
}

// EffectiveBillable falls back to the raw amount when no billable amount was stored.
func (e Expense) EffectiveBillable() decimal.Decimal {
	if e.BillableAmount.IsZero() && !e.Amount.IsZero() {
		return e.Amount
	}
	return e.BillableAmount
}

// Summary aggregates a case's expenses for one year in the base currency.
type Summary struct {
	CaseID           string          `json:"case_id"`
	Year             int             `json:"year"`
	Currency         string          `json:"currency"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	BillableExpenses decimal.Decimal `json:"billable_expenses"`
	BilledExpenses   decimal.Decimal `json:"billed_expenses"`
	UnbilledBillable decimal.Decimal `json:"unbilled_billable"`
	ExpenseCount     int             `json:"expense_count"`
}
