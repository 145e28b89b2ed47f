package scheduler

import (
	"context"

	"go.uber.org/zap"
)

const runLockKey = "scheduler:run"

// acquireRunLock keeps two instances from running the same jobs at once.
// Without a locker every call succeeds.
func (s *Scheduler) acquireRunLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, runLockKey, s.cfg.RunLockTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), runLockKey, token); err != nil {
			s.log.Warn("scheduler run lock release failed", zap.Error(err))
		}
	}
	return release, true, nil
}
