// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsTerminal reports whether the invoice and its lines are frozen.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice is a bill for one case over one period. Monetary fields other than
// the pricing inputs are derived from the line items by Recompute.
type Invoice struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceNumber    string          `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	CaseID           snowflake.ID    `gorm:"not null;index" json:"case_id"`
	ClientID         snowflake.ID    `gorm:"not null;index" json:"client_id"`
	CurrencyID       snowflake.ID    `gorm:"not null" json:"currency_id"`
	Status           InvoiceStatus   `gorm:"type:text;not null;index" json:"status"`
	IssueDate        time.Time       `gorm:"not null;index" json:"issue_date"`
	DueDate          time.Time       `gorm:"not null" json:"due_date"`
	PeriodStart      time.Time       `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time       `gorm:"not null" json:"period_end"`
	DiscountPercent  decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_percent"`
	SubtotalTime     decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"subtotal_time"`
	SubtotalExpenses decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"subtotal_expenses"`
	DiscountAmount   decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"discount_amount"`
	TaxRate          decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"tax_rate"`
	TaxAmount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"tax_amount"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	IsAutoGenerated  bool            `gorm:"not null;default:false" json:"is_auto_generated"`
	AutoSend         bool            `gorm:"not null;default:false" json:"auto_send"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy        *snowflake.ID   `json:"created_by,omitempty"`
	SentAt           *time.Time      `json:"sent_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// EffectiveStatus derives overdue from a sent invoice whose due date has passed.
// Overdue is never stored.
func (i Invoice) EffectiveStatus(today time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusSent && i.DueDate.Before(today) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// Totals returns the stored monetary fields.
func (i Invoice) Totals() Totals {
	return Totals{
		SubtotalTime:     i.SubtotalTime,
		SubtotalExpenses: i.SubtotalExpenses,
		DiscountAmount:   i.DiscountAmount,
		TaxAmount:        i.TaxAmount,
		TotalAmount:      i.TotalAmount,
	}
}

// InvoiceTimeEntry bills one time entry. The unique index on time_entry_id
// alone is what keeps an entry from ever appearing on two invoices.
type InvoiceTimeEntry struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID     snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_time_entry,priority:1" json:"invoice_id"`
	TimeEntryID   snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_time_entry,priority:2;uniqueIndex:ux_time_entry_billed_once" json:"time_entry_id"`
	BillingRateID snowflake.ID    `gorm:"not null;index" json:"billing_rate_id"`
	WorkerID      snowflake.ID    `gorm:"not null" json:"worker_id"`
	Description   string          `gorm:"type:text" json:"description"`
	Minutes       int             `gorm:"not null" json:"minutes"`
	Hours         decimal.Decimal `gorm:"type:numeric(10,4);not null" json:"hours"`
	RateAmount    decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"rate_amount"`
	Total         decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"total"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceTimeEntry) TableName() string { return "invoice_time_entries" }

// InvoiceExpenseItem bills one expense at its frozen billable amount.
type InvoiceExpenseItem struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_expense,priority:1" json:"invoice_id"`
	ExpenseID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoice_expense,priority:2;uniqueIndex:ux_expense_billed_once" json:"expense_id"`
	Description    string          `gorm:"type:text" json:"description"`
	BillableAmount decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"billable_amount"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceExpenseItem) TableName() string { return "invoice_expense_items" }

// InvoiceSequence is the per-year counter behind invoice numbers.
type InvoiceSequence struct {
	Year      int   `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64 `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
