package events

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "casebill:events:"

// RedisPublisher appends each event to a per-topic redis stream.
type RedisPublisher struct {
	client redis.UniversalClient
	maxLen int64
}

func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client, maxLen: 10000}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p == nil || p.client == nil {
		return errors.New("event broker not configured")
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPrefix + topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"topic": topic, "payload": string(payload)},
	}).Err()
}

// LogPublisher is the broker used when redis is not configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log")}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.log.Info("billing event", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}
