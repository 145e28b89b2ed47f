package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	CompletedTotal(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
}

type RecordPaymentRequest struct {
	InvoiceID       string         `json:"-"`
	Amount          string         `json:"amount"`
	Method          string         `json:"method"`
	ExternalTxID    *string        `json:"external_transaction_id,omitempty"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`
	PaymentDate     *time.Time     `json:"payment_date,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	Actor           string         `json:"-"`
}

// RecordPaymentResult reports the invoice position after the payment.
// Overpaid is set when completed payments exceed the invoice total.
type RecordPaymentResult struct {
	Payment       Payment         `json:"payment"`
	InvoiceStatus string          `json:"invoice_status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	Overpaid      bool            `json:"overpaid"`
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)
	RefundPayment(ctx context.Context, paymentID string, actor string) (Payment, error)
	GetByID(ctx context.Context, paymentID string) (Payment, error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	RenderReceipt(ctx context.Context, paymentID string) ([]byte, string, error)
}

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvoiceCancelled     = errors.New("invoice_cancelled")
	ErrInvalidInvoiceID     = errors.New("invalid_invoice_id")
	ErrInvalidPaymentID     = errors.New("invalid_payment_id")
	ErrPaymentNotFound      = errors.New("payment_not_found")
	ErrNonPositiveAmount    = errors.New("non_positive_amount")
	ErrInvalidAmount        = errors.New("invalid_payment_amount")
	ErrInvalidMethod        = errors.New("invalid_payment_method")
	ErrPaymentNotRefundable = errors.New("payment_not_refundable")
)
