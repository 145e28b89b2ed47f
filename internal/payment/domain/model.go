package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodStripe       PaymentMethod = "stripe"
	MethodCheck        PaymentMethod = "check"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCreditCard, MethodPayPal, MethodStripe, MethodCheck:
		return true
	}
	return false
}

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
)

// Payment is money received against an invoice, in the invoice currency.
type Payment struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	PaymentUID            uuid.UUID         `json:"payment_uid" gorm:"type:uuid;not null;uniqueIndex"`
	InvoiceID             snowflake.ID      `json:"invoice_id" gorm:"not null;index"`
	Amount                decimal.Decimal   `json:"amount" gorm:"type:numeric(14,2);not null"`
	CurrencyID            snowflake.ID      `json:"currency_id" gorm:"not null"`
	Method                PaymentMethod     `json:"method" gorm:"type:text;not null"`
	ExternalTransactionID *string           `json:"external_transaction_id,omitempty" gorm:"type:text"`
	GatewayResponse       datatypes.JSONMap `json:"gateway_response,omitempty"`
	Status                PaymentStatus     `json:"status" gorm:"type:text;not null;index"`
	PaymentDate           time.Time         `json:"payment_date" gorm:"not null"`
	Notes                 string            `json:"notes,omitempty" gorm:"type:text"`
	ProcessedBy           *snowflake.ID     `json:"processed_by,omitempty"`
	RefundedAt            *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }
