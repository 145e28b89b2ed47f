package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Days is the fixed length of one billing period. Months are 30 days, so a
// monthly schedule drifts against the calendar: 2024-01-31 is followed by
// 2024-03-01.
func (f Frequency) Days() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencyYearly:
		return 365
	}
	return 0
}

func (f Frequency) Valid() bool { return f.Days() > 0 }

// RecurringInvoice is a schedule that bills a case once per period.
type RecurringInvoice struct {
	ID                snowflake.ID     `gorm:"primaryKey" json:"id"`
	CaseID            snowflake.ID     `gorm:"not null;index" json:"case_id"`
	TemplateInvoiceID *snowflake.ID    `json:"template_invoice_id,omitempty"`
	Frequency         Frequency        `gorm:"type:text;not null" json:"frequency"`
	StartDate         time.Time        `gorm:"not null" json:"start_date"`
	EndDate           *time.Time       `json:"end_date,omitempty"`
	NextInvoiceDate   time.Time        `gorm:"not null;index" json:"next_invoice_date"`
	DiscountPercent   decimal.Decimal  `gorm:"type:numeric(5,2);not null" json:"discount_percent"`
	TaxRate           *decimal.Decimal `gorm:"type:numeric(5,2)" json:"tax_rate,omitempty"`
	IncludeExpenses   bool             `gorm:"not null;default:true" json:"include_expenses"`
	IsActive          bool             `gorm:"not null;default:true;index" json:"is_active"`
	LastRunAt         *time.Time       `json:"last_run_at,omitempty"`
	LastError         *string          `gorm:"type:text" json:"last_error,omitempty"`
	LastInvoiceID     *snowflake.ID    `json:"last_invoice_id,omitempty"`
	CreatedBy         *snowflake.ID    `json:"created_by,omitempty"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"not null" json:"updated_at"`
}

func (RecurringInvoice) TableName() string { return "recurring_invoices" }

// Period returns the inclusive window billed by the run due on NextInvoiceDate.
func (r RecurringInvoice) Period() (time.Time, time.Time) {
	end := r.NextInvoiceDate
	return end.AddDate(0, 0, -r.Frequency.Days()), end
}

// Advance returns the date of the run after the current one.
func (r RecurringInvoice) Advance() time.Time {
	return r.NextInvoiceDate.AddDate(0, 0, r.Frequency.Days())
}
