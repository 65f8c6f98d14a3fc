// Package pool provides a fixed-size worker pool with a bounded queue.
//
// Submit blocks until the task is queued, giving callers backpressure when
// every worker is busy and the queue is full. TrySubmit fails fast with
// POOL_SATURATED instead. Task panics are recovered and returned as errors;
// a panicking task never takes a worker down.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
)

// Task is a unit of work. The context is the one passed at submission.
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
	done chan error
}

// Handle reports the outcome of a submitted task.
type Handle struct {
	done chan error
	err  error
	once sync.Once
}

// Wait blocks until the task finishes or ctx is done. After ctx is done the
// task may still run to completion in the background; its result is
// discarded.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		h.once.Do(func() { h.err = err })
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool runs tasks on a fixed set of worker goroutines.
type Pool struct {
	workers   int
	queueSize int
	logger    *zap.Logger

	tasks chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	active    atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// New starts a pool. workers <= 0 selects runtime.NumCPU(); queueSize <= 0
// selects twice the worker count.
func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 2 * workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		workers:   workers,
		queueSize: queueSize,
		logger:    logger,
		tasks:     make(chan job, queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(id)
		}(i)
	}
	return p
}

// Submit queues task, blocking while the queue is full. It fails with
// POOL_CLOSED after Close, or with the context error if ctx is done first.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, apperrors.Newf(apperrors.ErrPoolClosed, "pool is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j := job{ctx: ctx, task: task, done: make(chan error, 1)}
	select {
	case p.tasks <- j:
		return &Handle{done: j.done}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrySubmit queues task without blocking. It fails with POOL_SATURATED when
// the queue is full.
func (p *Pool) TrySubmit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, apperrors.Newf(apperrors.ErrPoolClosed, "pool is closed")
	}

	j := job{ctx: ctx, task: task, done: make(chan error, 1)}
	select {
	case p.tasks <- j:
		return &Handle{done: j.done}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrPoolSaturated,
			"queue full (%d queued, %d workers)", p.queueSize, p.workers)
	}
}

// Close stops accepting tasks, lets queued tasks finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	for j := range p.tasks {
		j.done <- p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) (err error) {
	// Tasks whose caller already gave up are skipped.
	if ctxErr := j.ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("task panicked",
				zap.Int("worker", id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = apperrors.New(apperrors.KindPipeline, apperrors.ErrTaskPanic.Code, fmt.Sprintf("task panicked: %v", r))
		}
	}()

	return j.task(j.ctx)
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Workers   int   `json:"workers" yaml:"workers"`
	QueueSize int   `json:"queue_size" yaml:"queue_size"`
	Queued    int   `json:"queued" yaml:"queued"`
	Active    int64 `json:"active" yaml:"active"`
	Completed int64 `json:"completed" yaml:"completed"`
	Panics    int64 `json:"panics" yaml:"panics"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		QueueSize: p.queueSize,
		Queued:    len(p.tasks),
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *Pool) Workers() int {
	return p.workers
}

// QueueLen returns the number of tasks waiting for a worker.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}

// ActiveTasks returns the number of tasks currently running.
func (p *Pool) ActiveTasks() int64 {
	return p.active.Load()
}
