package domain

import (
	"context"
	"errors"
	"time"
)

type CreateRequest struct {
	CaseID            string  `json:"case_id"`
	TemplateInvoiceID *string `json:"template_invoice_id,omitempty"`
	Frequency         string  `json:"frequency"`
	StartDate         string  `json:"start_date"`
	EndDate           *string `json:"end_date,omitempty"`
	DiscountPercent   string  `json:"discount_percent,omitempty"`
	TaxRate           *string `json:"tax_rate,omitempty"`
	IncludeExpenses   *bool   `json:"include_expenses,omitempty"`
	Actor             string  `json:"-"`
}

const (
	OutcomeGenerated = "generated"
	OutcomeFailed    = "failed"
)

// RunResult is the outcome of one template in a RunDue pass.
type RunResult struct {
	TemplateID      string    `json:"template_id"`
	CaseID          string    `json:"case_id"`
	Outcome         string    `json:"outcome"`
	InvoiceID       string    `json:"invoice_id,omitempty"`
	InvoiceNumber   string    `json:"invoice_number,omitempty"`
	Error           string    `json:"error,omitempty"`
	DispatchError   string    `json:"dispatch_error,omitempty"`
	NextInvoiceDate time.Time `json:"next_invoice_date"`
	Deactivated     bool      `json:"deactivated,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (RecurringInvoice, error)
	SetActive(ctx context.Context, id string, active bool, actor string) (RecurringInvoice, error)
	List(ctx context.Context, activeOnly bool) ([]RecurringInvoice, error)
	// RunDue bills every active template whose next date is on or before
	// today. One template failing never stops the others.
	RunDue(ctx context.Context, today time.Time) ([]RunResult, error)
}

var (
	ErrRecurringNotFound    = errors.New("recurring_invoice_not_found")
	ErrInvalidID            = errors.New("invalid_recurring_invoice_id")
	ErrInvalidCase          = errors.New("invalid_case")
	ErrInvalidFrequency     = errors.New("invalid_frequency")
	ErrInvalidStartDate     = errors.New("invalid_start_date")
	ErrInvalidEndDate       = errors.New("invalid_end_date")
	ErrInvalidDiscount      = errors.New("invalid_discount_percent")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrTemplateNotFound     = errors.New("template_invoice_not_found")
	ErrTemplateCaseMismatch = errors.New("template_invoice_case_mismatch")
)
