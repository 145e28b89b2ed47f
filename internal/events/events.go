// Package events records billing facts in an outbox table after the owning
// transaction commits, and relays them to a broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	InvoiceGenerated      = "invoice.generated"
	InvoiceSent           = "invoice.sent"
	InvoiceDispatchFailed = "invoice.dispatch_failed"
	InvoiceCancelled      = "invoice.cancelled"
	InvoicePaid           = "invoice.paid"
	PaymentRecorded       = "payment.recorded"
	PaymentRefunded       = "payment.refunded"
	RecurringFailed       = "recurring.failed"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// BillingEvent is one outbox row.
type BillingEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	EventType   string         `gorm:"type:text;not null;index"`
	Payload     datatypes.JSON `gorm:"not null"`
	Published   bool           `gorm:"not null;default:false;index"`
	PublishedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
}

func (BillingEvent) TableName() string { return "billing_events" }

// PublishJSON marshals payload and hands it to p. A nil publisher is a no-op.
func PublishJSON(ctx context.Context, p Publisher, topic string, payload any) error {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, raw)
}
