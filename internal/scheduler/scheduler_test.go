package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestEvery_RunsImmediatelyAndRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		Every(ctx, 10*time.Millisecond, "count", zaptest.NewLogger(t), func(context.Context) error {
			if n.Add(1) == 3 {
				cancel()
			}
			return errors.New("keep going")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

func TestEvery_NonPositiveIntervalReturns(t *testing.T) {
	called := false
	Every(context.Background(), 0, "off", nil, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}
