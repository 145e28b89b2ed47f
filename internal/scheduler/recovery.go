package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// safeRunOnce turns a panic inside a cron-triggered run into an error so the
// cron goroutine survives.
func (s *Scheduler) safeRunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler run panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("scheduler panic: %v", r)
		}
	}()
	return s.RunOnce(ctx)
}
