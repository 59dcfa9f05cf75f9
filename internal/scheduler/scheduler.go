package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"jobtrack-engine/internal/logging"
)

type Task func(ctx context.Context) error

// Every runs task once immediately and then on each tick until ctx is done.
// Runs never overlap: a tick that fires during a slow run is dropped by the
// ticker.
func Every(ctx context.Context, interval time.Duration, name string, log *zap.Logger, task Task) {
	log = logging.OrNop(log).With(zap.String("task", name))
	if interval <= 0 {
		log.Warn("scheduler disabled: non-positive interval", zap.Duration("interval", interval))
		return
	}

	run := func() {
		start := time.Now()
		err := task(ctx)
		switch {
		case err == nil:
			log.Debug("task done", zap.Duration("took", time.Since(start)))
		case errors.Is(err, context.Canceled):
		default:
			log.Error("task failed", zap.Error(err))
		}
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
