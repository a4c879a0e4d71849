package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已停止
var ErrPoolStopped = errors.New("worker pool stopped")

// Task 池中执行的任务，ctx 为协程池的运行上下文
type Task func(ctx context.Context)

// WorkerPool 协程池
//
// 用于限制并发协程数量，队列消费者把任务交给它执行
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan Task
	log        *zap.Logger
	wg         sync.WaitGroup

	// mu 只保护 stopped 与 submitters 的登记，阻塞发送时不持有
	mu         sync.Mutex
	stopped    bool
	submitters sync.WaitGroup
	done       chan struct{}
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan Task, queueSize),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位、ctx 结束或协程池停止
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if !p.enter() {
		return ErrPoolStopped
	}
	defer p.submitters.Done()

	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	select {
	case p.taskQueue <- task:
		return nil
	case <-p.done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满，立即返回 false
func (p *WorkerPool) TrySubmit(task Task) bool {
	if !p.enter() {
		return false
	}
	defer p.submitters.Done()

	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// enter 登记一个提交者，协程池已停止时返回 false
func (p *WorkerPool) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.submitters.Add(1)
	return true
}

// Stop 停止接收任务，等待已排队的任务执行完毕
//
// 阻塞在 Submit 中的调用方会收到 ErrPoolStopped
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.done)
	p.submitters.Wait()
	close(p.taskQueue)

	p.wg.Wait()
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(ctx, task)
		}
	}
}

// run 执行任务（捕获 panic）
func (p *WorkerPool) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
		}
	}()
	task(ctx)
}
