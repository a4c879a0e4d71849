package queue

import (
	"context"
	"sync"
)

// memoryTopic 单个主题的任务列表，notify 在列表非空时有信号
type memoryTopic struct {
	items  [][]byte
	notify chan struct{}
}

// MemoryBroker 进程内任务队列
//
// 与 Redis LPUSH 一样，Push 从不阻塞：每个主题是一个不限长度的列表，
// 消费者阻塞在 Pop 上等待新任务。
type MemoryBroker struct {
	mu     sync.Mutex
	size   int
	topics map[string]*memoryTopic
	failed map[string][][]byte
	closed chan struct{}
	once   sync.Once
}

// NewMemoryBroker 创建进程内队列，size 为每个主题列表的初始容量
func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = 256
	}
	return &MemoryBroker{
		size:   size,
		topics: make(map[string]*memoryTopic),
		failed: make(map[string][][]byte),
		closed: make(chan struct{}),
	}
}

// topic 调用方必须持有 b.mu
func (b *MemoryBroker) topic(name string) *memoryTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{
			items:  make([][]byte, 0, b.size),
			notify: make(chan struct{}, 1),
		}
		b.topics[name] = t
	}
	return t
}

func (t *memoryTopic) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Push 追加任务，立即返回
func (b *MemoryBroker) Push(ctx context.Context, topic string, data []byte) error {
	select {
	case <-b.closed:
		return ErrQueueClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	t := b.topic(topic)
	t.items = append(t.items, append([]byte(nil), data...))
	b.mu.Unlock()

	t.signal()
	return nil
}

// Pop 取出任务，无任务时阻塞直到 ctx 结束或队列关闭
func (b *MemoryBroker) Pop(ctx context.Context, topic string) (*Delivery, error) {
	for {
		select {
		case <-b.closed:
			return nil, ErrQueueClosed
		default:
		}

		b.mu.Lock()
		t := b.topic(topic)
		if len(t.items) > 0 {
			data := t.items[0]
			t.items[0] = nil
			t.items = t.items[1:]
			remaining := len(t.items)
			b.mu.Unlock()

			// 其他消费者可能在等待剩余的任务
			if remaining > 0 {
				t.signal()
			}
			return b.delivery(topic, data), nil
		}
		b.mu.Unlock()

		select {
		case <-t.notify:
		case <-b.closed:
			return nil, ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *MemoryBroker) delivery(topic string, data []byte) *Delivery {
	return &Delivery{
		Data: data,
		Ack:  func(context.Context) error { return nil },
		Fail: func(_ context.Context, _ error) error {
			b.mu.Lock()
			b.failed[topic] = append(b.failed[topic], data)
			b.mu.Unlock()
			return nil
		},
	}
}

// Failed 返回某主题处理失败的任务原文
func (b *MemoryBroker) Failed(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.failed[topic]...)
}

// Pending 返回某主题排队中的任务数
func (b *MemoryBroker) Pending(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topic(topic).items)
}

// Close 关闭队列，阻塞中的 Pop 立即返回 ErrQueueClosed
func (b *MemoryBroker) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}
