package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_Run(t *testing.T) {
	t.Run("启动即触发并按周期重复", func(t *testing.T) {
		var calls atomic.Int32
		s := New(10*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return nil
		}, zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop")
		}
	})

	t.Run("触发失败不会中断调度", func(t *testing.T) {
		var calls atomic.Int32
		s := New(5*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("queue unavailable")
		}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = s.Run(ctx) }()

		assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("默认周期", func(t *testing.T) {
		s := New(0, func(context.Context) error { return nil }, nil)
		assert.Equal(t, DefaultInterval, s.Interval())
	})
}
