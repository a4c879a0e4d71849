package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailinchat/backend/internal/pool"
)

// 队列主题
const (
	TopicFetch      = "/mail-in-chat/gmail/fetch"
	TopicParse      = "/mail-in-chat/gmail/parse"
	TopicAttachment = "/mail-in-chat/attachment/get"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("queue closed")

// Task 队列中的一条任务
type Task struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Decode 把任务载荷解码到 v
func (t *Task) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload, v)
}

// Handler 处理一条任务，返回错误时任务进入失败列表
type Handler func(ctx context.Context, task *Task) error

// Delivery 一次取出的任务原文，处理结束后必须 Ack 或 Fail
type Delivery struct {
	Data []byte
	Ack  func(ctx context.Context) error
	Fail func(ctx context.Context, cause error) error
}

// Broker 定义底层的任务存取
type Broker interface {
	// Push 追加一条任务原文
	Push(ctx context.Context, topic string, data []byte) error
	// Pop 阻塞取出一条任务；超时无任务时返回 nil, nil
	Pop(ctx context.Context, topic string) (*Delivery, error)
}

// Queue 按主题发布任务，并用协程池消费
type Queue struct {
	broker Broker
	pool   *pool.WorkerPool
	log    *zap.Logger
}

// New 创建队列，workers 为消费任务的协程池
func New(broker Broker, workers *pool.WorkerPool, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		broker: broker,
		pool:   workers,
		log:    log,
	}
}

// Publish 发布任务，payload 以 JSON 编码
func (q *Queue) Publish(ctx context.Context, topic string, payload interface{}) error {
	task := Task{
		ID:         uuid.NewString(),
		Topic:      topic,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", topic, err)
		}
		task.Payload = raw
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode %s task: %w", topic, err)
	}
	if err := q.broker.Push(ctx, topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Consume 持续取出 topic 的任务交给协程池执行，直到 ctx 结束
func (q *Queue) Consume(ctx context.Context, topic string, handler Handler) error {
	log := q.log.With(zap.String("topic", topic))
	log.Info("queue consumer started")

	for {
		if ctx.Err() != nil {
			log.Info("queue consumer stopped")
			return nil
		}

		delivery, err := q.broker.Pop(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, ErrQueueClosed) {
				log.Info("queue closed")
				return nil
			}
			log.Error("failed to pop task", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if delivery == nil {
			continue
		}

		if err := q.pool.Submit(ctx, q.process(log, delivery, handler)); err != nil {
			// 未执行的任务交回失败列表，避免丢失
			failCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if ferr := delivery.Fail(failCtx, err); ferr != nil {
				log.Error("failed to return undispatched task", zap.Error(ferr))
			}
			cancel()
			if errors.Is(err, pool.ErrPoolStopped) {
				return nil
			}
		}
	}
}

func (q *Queue) process(log *zap.Logger, delivery *Delivery, handler Handler) pool.Task {
	return func(ctx context.Context) {
		var task Task
		if err := json.Unmarshal(delivery.Data, &task); err != nil {
			log.Error("dropping malformed task", zap.Error(err))
			if ferr := delivery.Fail(ctx, err); ferr != nil {
				log.Error("failed to move malformed task", zap.Error(ferr))
			}
			return
		}

		taskLog := log.With(zap.String("task_id", task.ID))
		if err := handler(ctx, &task); err != nil {
			taskLog.Error("task failed", zap.Error(err))
			if ferr := delivery.Fail(ctx, err); ferr != nil {
				taskLog.Error("failed to record task failure", zap.Error(ferr))
			}
			return
		}

		if err := delivery.Ack(ctx); err != nil {
			taskLog.Error("failed to ack task", zap.Error(err))
		}
	}
}
