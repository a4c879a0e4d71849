package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailinchat/backend/internal/pool"
)

type parsePayload struct {
	MessageID string `json:"messageId"`
}

func startQueue(t *testing.T) (*Queue, *MemoryBroker, context.Context, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	broker := NewMemoryBroker(8)
	workers := pool.NewWorkerPool(2, 4, zap.NewNop())
	workers.Start(ctx)

	return New(broker, workers, zap.NewNop()), broker, ctx, func() {
		cancel()
		workers.Stop()
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	q, _, ctx, stop := startQueue(t)
	defer stop()

	var (
		mu  sync.Mutex
		ids []string
	)
	done := make(chan struct{}, 3)

	go func() {
		_ = q.Consume(ctx, TopicParse, func(_ context.Context, task *Task) error {
			var payload parsePayload
			if err := task.Decode(&payload); err != nil {
				return err
			}
			mu.Lock()
			ids = append(ids, payload.MessageID)
			mu.Unlock()
			done <- struct{}{}
			return nil
		})
	}()

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, q.Publish(ctx, TopicParse, parsePayload{MessageID: id}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, ids)
}

func TestQueue_FailedTasksAreRecorded(t *testing.T) {
	q, broker, ctx, stop := startQueue(t)
	defer stop()

	handled := make(chan struct{}, 1)
	go func() {
		_ = q.Consume(ctx, TopicAttachment, func(context.Context, *Task) error {
			defer func() { handled <- struct{}{} }()
			return errors.New("provider unavailable")
		})
	}()

	require.NoError(t, q.Publish(ctx, TopicAttachment, map[string]string{"attachmentId": "a1"}))

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
	}

	assert.Eventually(t, func() bool {
		return len(broker.Failed(TopicAttachment)) == 1
	}, time.Second, 10*time.Millisecond)

	var task Task
	require.NoError(t, json.Unmarshal(broker.Failed(TopicAttachment)[0], &task))
	assert.Equal(t, TopicAttachment, task.Topic)
	assert.NotEmpty(t, task.ID)
}

func TestQueue_PublishWithoutPayload(t *testing.T) {
	q, broker, ctx, stop := startQueue(t)
	defer stop()

	require.NoError(t, q.Publish(ctx, TopicFetch, nil))
	assert.Equal(t, 1, broker.Pending(TopicFetch))

	delivery, err := broker.Pop(ctx, TopicFetch)
	require.NoError(t, err)

	var task Task
	require.NoError(t, json.Unmarshal(delivery.Data, &task))
	assert.Empty(t, task.Payload)
	var v map[string]string
	assert.NoError(t, task.Decode(&v))
}

func TestMemoryBroker_Close(t *testing.T) {
	broker := NewMemoryBroker(1)
	require.NoError(t, broker.Close())

	err := broker.Push(context.Background(), TopicFetch, []byte("x"))
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = broker.Pop(context.Background(), TopicFetch)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_ConsumeReturnsWhenBrokerClosed(t *testing.T) {
	q, broker, ctx, stop := startQueue(t)
	defer stop()

	finished := make(chan error, 1)
	go func() {
		finished <- q.Consume(ctx, TopicFetch, func(context.Context, *Task) error { return nil })
	}()

	require.NoError(t, broker.Close())

	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestMemoryBroker_PushNeverBlocks(t *testing.T) {
	broker := NewMemoryBroker(2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		require.NoError(t, broker.Push(ctx, TopicParse, []byte{byte(i)}))
	}
	assert.Equal(t, 100, broker.Pending(TopicParse))

	// 先进先出
	delivery, err := broker.Pop(ctx, TopicParse)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, delivery.Data)
	assert.Equal(t, 99, broker.Pending(TopicParse))
}

func TestMemoryBroker_PopWaitsForPush(t *testing.T) {
	broker := NewMemoryBroker(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan []byte, 1)
	go func() {
		delivery, err := broker.Pop(ctx, TopicFetch)
		if err == nil {
			got <- delivery.Data
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, broker.Push(ctx, TopicFetch, []byte("late")))

	select {
	case data := <-got:
		assert.Equal(t, []byte("late"), data)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

// 处理器向其他主题扇出任务时，即使协程池和队列容量都很小，链路也不会停滞
func TestQueue_FanOutWithSmallPool(t *testing.T) {
	const (
		messages    = 20
		attachments = 2
	)

	ctx, cancel := context.WithCancel(context.Background())
	broker := NewMemoryBroker(2)
	workers := pool.NewWorkerPool(1, 1, zap.NewNop())
	workers.Start(ctx)
	q := New(broker, workers, zap.NewNop())
	defer func() {
		cancel()
		workers.Stop()
	}()

	var completed int32

	go func() {
		_ = q.Consume(ctx, TopicFetch, func(ctx context.Context, _ *Task) error {
			for i := 0; i < messages; i++ {
				if err := q.Publish(ctx, TopicParse, parsePayload{MessageID: "m"}); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	go func() {
		_ = q.Consume(ctx, TopicParse, func(ctx context.Context, _ *Task) error {
			for i := 0; i < attachments; i++ {
				if err := q.Publish(ctx, TopicAttachment, nil); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	go func() {
		_ = q.Consume(ctx, TopicAttachment, func(context.Context, *Task) error {
			atomic.AddInt32(&completed, 1)
			return nil
		})
	}()

	require.NoError(t, q.Publish(ctx, TopicFetch, nil))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&completed) == messages*attachments
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, broker.Failed(TopicParse))
	assert.Empty(t, broker.Failed(TopicAttachment))
}
