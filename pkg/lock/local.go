package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is an in-process Locker for single-node deployments and tests.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, held := l.entries[key]; held && now.Before(entry.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.entries[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.entries[key]; held && entry.token == token {
		delete(l.entries, key)
	}
	return nil
}
