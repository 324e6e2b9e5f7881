package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultWarmUpBudget bounds how long start waits on the primer.
const DefaultWarmUpBudget = 50 * time.Millisecond

// WarmUp runs the primer best-effort. It never returns an error, never
// panics, and returns after at most budget even if the primer hangs.
// Some mobile runtimes only arm an encoder when the audio subsystem was
// activated within the same user gesture.
func WarmUp(ctx context.Context, p Primer, budget time.Duration, logger *zap.Logger) {
	if p == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("primer panic: %v", r)
			}
		}()
		done <- p.Prime(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Debug("warm-up failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Debug("warm-up exceeded budget", zap.Duration("budget", budget))
	}
}
