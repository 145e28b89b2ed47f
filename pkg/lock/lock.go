// Package lock provides short-lived, non-blocking mutual exclusion keyed by
// string. Holders must release with the token they were given.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

type Locker interface {
	// TryLock never waits; ok is false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
