package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/casebill/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingBroker struct {
	topics []string
	fail   bool
}

func (b *recordingBroker) Publish(_ context.Context, topic string, _ []byte) error {
	if b.fail {
		return errors.New("broker down")
	}
	b.topics = append(b.topics, topic)
	return nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&BillingEvent{}))
	return conn
}

func TestOutboxThenRelay(t *testing.T) {
	ctx := context.Background()
	conn := setupDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))

	pub := NewOutboxPublisher(conn, node, fake)
	require.NoError(t, PublishJSON(ctx, pub, InvoiceGenerated, map[string]string{"invoice_id": "1"}))
	fake.Advance(time.Second)
	require.NoError(t, PublishJSON(ctx, pub, InvoicePaid, map[string]string{"invoice_id": "1"}))

	broker := &recordingBroker{}
	relay := NewRelay(conn, broker, fake, zap.NewNop())

	n, err := relay.RelayPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{InvoiceGenerated, InvoicePaid}, broker.topics)

	n, err = relay.RelayPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayFailureKeepsEventsPending(t *testing.T) {
	ctx := context.Background()
	conn := setupDB(t)
	node, _ := snowflake.NewNode(1)

	pub := NewOutboxPublisher(conn, node, nil)
	require.NoError(t, pub.Publish(ctx, PaymentRecorded, []byte(`{"payment_id":"7"}`)))

	_, err := NewRelay(conn, &recordingBroker{fail: true}, nil, zap.NewNop()).RelayPending(ctx, 10)
	require.Error(t, err)

	var pending int64
	require.NoError(t, conn.Model(&BillingEvent{}).Where("published = ?", false).Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
}

func TestOutboxRejectsBadInput(t *testing.T) {
	conn := setupDB(t)
	node, _ := snowflake.NewNode(1)
	pub := NewOutboxPublisher(conn, node, nil)

	assert.ErrorIs(t, pub.Publish(context.Background(), " ", []byte(`{}`)), ErrEmptyTopic)
	assert.ErrorIs(t, pub.Publish(context.Background(), InvoiceSent, []byte(`{`)), ErrInvalidPayload)
	assert.NoError(t, PublishJSON(context.Background(), nil, InvoiceSent, struct{}{}))
}
