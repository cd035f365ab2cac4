package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gmsas95/devocr/internal/document"
)

// ErrPoolClosed is returned for tasks submitted after Close.
var ErrPoolClosed = errors.New("pool closed")

// TaskFunc is the unit of work run by a pool worker.
type TaskFunc func(ctx context.Context) (document.BatchResult, error)

// Task is a submitted TaskFunc and, once finished, its outcome.
type Task struct {
	ID      int
	Result  document.BatchResult
	Err     error
	Skipped bool // never ran because the pool was cancelled

	fn   TaskFunc
	done chan struct{}
}

// Done is closed once the task has finished or been skipped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// PanicError carries a panic recovered inside a task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Pool is a fixed set of workers draining a bounded task queue. Finished
// tasks are delivered on Completed in completion order.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	workers   int
	queue     chan *Task
	completed chan *Task

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewPool starts workers goroutines. capacity is the most tasks the pool
// will hold; Submit blocks beyond it until workers catch up.
func NewPool(ctx context.Context, workers, capacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:       pctx,
		cancel:    cancel,
		workers:   workers,
		queue:     make(chan *Task, capacity),
		completed: make(chan *Task, capacity),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}

	return p
}

func (p *Pool) worker() {
	for task := range p.queue {
		p.run(task)
		close(task.done)
		p.completed <- task
	}
}

func (p *Pool) run(task *Task) {
	if err := p.ctx.Err(); err != nil {
		task.Err = err
		task.Skipped = true
		return
	}

	defer func() {
		if r := recover(); r != nil {
			task.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	task.Result, task.Err = task.fn(p.ctx)
}

// Submit queues fn under id.
func (p *Pool) Submit(id int, fn TaskFunc) *Task {
	task := &Task{ID: id, fn: fn, done: make(chan struct{})}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		task.Err = ErrPoolClosed
		task.Skipped = true
		close(task.done)
		return task
	}
	p.queue <- task
	return task
}

// Completed delivers finished tasks. It is closed by Close.
func (p *Pool) Completed() <-chan *Task {
	return p.completed
}

// Cancel skips every task that has not started yet and cancels the context
// handed to running ones.
func (p *Pool) Cancel() {
	p.cancel()
}

// Close stops accepting tasks and waits for all workers to exit.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()
		close(p.completed)
	})
}

func (p *Pool) Workers() int {
	return p.workers
}
