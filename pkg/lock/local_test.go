package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerIsExclusiveUntilRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	token, ok, err := l.TryLock(ctx, "case:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "case:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	_, ok, err = l.TryLock(ctx, "case:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	require.NoError(t, l.Release(ctx, "case:1", "not-the-token"))
	_, ok, _ = l.TryLock(ctx, "case:1", time.Minute)
	assert.False(t, ok, "release with a foreign token is ignored")

	require.NoError(t, l.Release(ctx, "case:1", token))
	_, ok, _ = l.TryLock(ctx, "case:1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	_, ok, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be reacquired")
}

func TestLockValidation(t *testing.T) {
	l := NewLocalLocker()
	_, _, err := l.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}
