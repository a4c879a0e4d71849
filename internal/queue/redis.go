package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker 基于 Redis 列表的至少一次队列
//
// 键布局（prefix 默认为 "queue"）：
//   - <prefix>:<topic>             待处理
//   - <prefix>:<topic>:processing  已取出未确认
//   - <prefix>:<topic>:failed      处理失败
type RedisBroker struct {
	rdb         *goredis.Client
	prefix      string
	popTimeout  time.Duration
	failedLimit int64
	log         *zap.Logger
}

// NewRedisBroker 创建 Redis 队列
func NewRedisBroker(rdb *goredis.Client, log *zap.Logger) *RedisBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{
		rdb:         rdb,
		prefix:      "queue",
		popTimeout:  2 * time.Second,
		failedLimit: 1000,
		log:         log,
	}
}

func (b *RedisBroker) pendingKey(topic string) string {
	return fmt.Sprintf("%s:%s", b.prefix, topic)
}

func (b *RedisBroker) processingKey(topic string) string {
	return b.pendingKey(topic) + ":processing"
}

func (b *RedisBroker) failedKey(topic string) string {
	return b.pendingKey(topic) + ":failed"
}

// Push 从左侧追加任务
func (b *RedisBroker) Push(ctx context.Context, topic string, data []byte) error {
	return b.rdb.LPush(ctx, b.pendingKey(topic), data).Err()
}

// Pop 从右侧取出任务并原子地移入处理中列表
func (b *RedisBroker) Pop(ctx context.Context, topic string) (*Delivery, error) {
	processing := b.processingKey(topic)

	data, err := b.rdb.BLMove(ctx, b.pendingKey(topic), processing, "RIGHT", "LEFT", b.popTimeout).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	return &Delivery{
		Data: data,
		Ack: func(ctx context.Context) error {
			return b.rdb.LRem(ctx, processing, 1, data).Err()
		},
		Fail: func(ctx context.Context, cause error) error {
			failed := b.failedKey(topic)
			_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.LRem(ctx, processing, 1, data)
				pipe.LPush(ctx, failed, data)
				pipe.LTrim(ctx, failed, 0, b.failedLimit-1)
				return nil
			})
			return err
		},
	}, nil
}

// Recover 把上次进程退出时未确认的任务放回待处理列表，返回数量
func (b *RedisBroker) Recover(ctx context.Context, topic string) (int, error) {
	processing := b.processingKey(topic)
	pending := b.pendingKey(topic)

	count := 0
	for {
		err := b.rdb.LMove(ctx, processing, pending, "RIGHT", "RIGHT").Err()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				break
			}
			return count, err
		}
		count++
	}

	if count > 0 {
		b.log.Info("requeued unacknowledged tasks",
			zap.String("topic", topic),
			zap.Int("count", count),
		)
	}
	return count, nil
}
