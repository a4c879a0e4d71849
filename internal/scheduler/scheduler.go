// Package scheduler 按固定周期触发抓取任务。
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval 默认抓取周期
const DefaultInterval = 30 * time.Second

// TriggerFunc 每个周期调用一次，通常是发布一个抓取任务
type TriggerFunc func(ctx context.Context) error

// Scheduler 周期触发器。
//
// 每次触发只负责发布任务，真正的抓取由队列消费者完成，
// 因此上一个周期尚未完成时下一个周期照常触发。
type Scheduler struct {
	interval time.Duration
	trigger  TriggerFunc
	log      *zap.Logger
}

// New 创建调度器，interval<=0 时使用 30 秒
func New(interval time.Duration, trigger TriggerFunc, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		trigger:  trigger,
		log:      log,
	}
}

// Interval 返回触发周期
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run 启动后立即触发一次，之后每个周期触发一次，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	s.fire(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if err := s.trigger(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("failed to trigger fetch cycle", zap.Error(err))
	}
}
