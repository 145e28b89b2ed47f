package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/casebill/pkg/db/pagination"
)

const (
	SourceManual    = "manual"
	SourceRecurring = "recurring"
)

type GenerateRequest struct {
	CaseID          snowflake.ID
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	DiscountPercent decimal.Decimal
	IncludeExpenses bool
	AutoSend        bool
	Actor           string
	Notes           string

	// TaxRate overrides the configured default when set.
	TaxRate *decimal.Decimal
	// Source labels metrics and events, e.g. "manual" or "recurring".
	Source string
}

// Warning describes work that was left off an invoice.
type Warning struct {
	Code        string `json:"code"`
	TimeEntryID string `json:"time_entry_id,omitempty"`
	WorkerID    string `json:"worker_id,omitempty"`
	Message     string `json:"message"`
}

const WarningUnresolvedRate = "unresolved_rate"

type GenerateResult struct {
	Invoice  InvoiceDetails `json:"invoice"`
	Warnings []Warning      `json:"warnings"`

	// DispatchError is set when auto-send failed; the invoice stays draft.
	DispatchError error `json:"-"`
}

// InvoiceDetails is an invoice with its lines and payment position.
type InvoiceDetails struct {
	Invoice
	EffectiveStatus InvoiceStatus        `json:"effective_status"`
	CurrencyCode    string               `json:"currency"`
	AmountPaid      decimal.Decimal      `json:"amount_paid"`
	BalanceDue      decimal.Decimal      `json:"balance_due"`
	TimeEntries     []InvoiceTimeEntry   `json:"time_entries"`
	Expenses        []InvoiceExpenseItem `json:"expenses"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	CaseID *snowflake.ID
	Status *InvoiceStatus
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []InvoiceDetails `json:"invoices"`
}

type UpdatePricingRequest struct {
	DiscountPercent *decimal.Decimal
	TaxRate         *decimal.Decimal
	Actor           string
}

// BillingSummary covers invoices issued for a case in one calendar year.
// Cancelled invoices do not count toward TotalBilled.
type BillingSummary struct {
	CaseID           string          `json:"case_id"`
	Year             int             `json:"year"`
	Currency         string          `json:"currency"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	InvoiceCount     int             `json:"invoice_count"`
	PaidInvoiceCount int             `json:"paid_invoice_count"`
}

type Service interface {
	GenerateInvoice(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	GetByID(ctx context.Context, id string) (InvoiceDetails, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)

	SendInvoice(ctx context.Context, id string, actor string) (InvoiceDetails, error)
	CancelInvoice(ctx context.Context, id string, actor string, reason string) (InvoiceDetails, error)
	RecomputeTotals(ctx context.Context, id string) (InvoiceDetails, error)
	UpdatePricing(ctx context.Context, id string, req UpdatePricingRequest) (InvoiceDetails, error)

	GetBillingSummary(ctx context.Context, caseID string, year int) (BillingSummary, error)
	RenderPDF(ctx context.Context, id string) ([]byte, string, error)
}

// DispatchRequest is a rendered invoice ready for delivery.
type DispatchRequest struct {
	Invoice    InvoiceDetails
	CaseTitle  string
	To         []string
	Cc         []string
	PDF        []byte
	PDFName    string
	ClientName string
}

// Dispatcher delivers an invoice to its recipients. A nil error means the
// delivery was confirmed.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}
