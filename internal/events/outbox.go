package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/casebill/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrEmptyTopic     = errors.New("event_topic_empty")
	ErrInvalidPayload = errors.New("event_payload_invalid")
)

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, c clock.Clock) Publisher {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &outboxPublisher{db: db, genID: genID, clock: c}
}

func (p *outboxPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrEmptyTopic
	}
	if !json.Valid(payload) {
		return ErrInvalidPayload
	}

	event := BillingEvent{
		ID:        p.genID.Generate(),
		EventType: topic,
		Payload:   datatypes.JSON(payload),
		Published: false,
		CreatedAt: p.clock.Now().UTC(),
	}
	return p.db.WithContext(ctx).Create(&event).Error
}
