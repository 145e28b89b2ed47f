package events

import (
	"context"
	"fmt"

	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/smallbiznis/casebill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Relay moves unpublished outbox rows to the broker in creation order.
type Relay struct {
	db     *gorm.DB
	broker Publisher
	clock  clock.Clock
	log    *zap.Logger
}

func NewRelay(conn *gorm.DB, broker Publisher, c clock.Clock, log *zap.Logger) *Relay {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Relay{db: conn, broker: broker, clock: c, log: log.Named("events.relay")}
}

// RelayPending publishes up to limit events inside one transaction and
// returns how many were marked published. A broker failure rolls back the
// marks of the whole batch, so those events are retried on the next run.
func (r *Relay) RelayPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	relayed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []BillingEvent
		if err := db.ForUpdateSkipLocked(tx).
			Where("published = ?", false).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&pending).Error; err != nil {
			return err
		}

		for _, event := range pending {
			if err := r.broker.Publish(ctx, event.EventType, event.Payload); err != nil {
				return fmt.Errorf("relay event %s: %w", event.ID, err)
			}
			now := r.clock.Now().UTC()
			res := tx.Exec(
				`UPDATE billing_events SET published = ?, published_at = ? WHERE id = ? AND published = ?`,
				true, now, event.ID, false,
			)
			if res.Error != nil {
				return res.Error
			}
			relayed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if relayed > 0 {
		r.log.Debug("relayed events", zap.Int("count", relayed))
	}
	return relayed, nil
}
