package task

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrQueueClosed is returned when enqueueing after shutdown.
var ErrQueueClosed = errors.New("task queue closed")

// Task is one schedulable unit of work. Run receives the current attempt
// number (0-based). When Run fails and the attempt budget is not yet
// spent, the task is re-enqueued after NextDelay(attempt); once the
// budget is exhausted OnExhausted fires with the final error.
type Task struct {
	Name        string
	MaxAttempts int
	NextDelay   func(attempt int) time.Duration
	Run         func(ctx context.Context, attempt int) error
	OnExhausted func(ctx context.Context, err error)

	attempt int
}

// Queue dispatches tasks onto a bounded worker pool.
type Queue interface {
	Enqueue(task Task) error
	Shutdown(ctx context.Context)
}

type workerQueue struct {
	tasks   chan Task
	wg      sync.WaitGroup
	pending sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewQueue starts a worker pool with the given parallelism.
func NewQueue(workers, buffer int) Queue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &workerQueue{
		tasks:   make(chan Task, buffer),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules a task for execution.
func (q *workerQueue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = 1
	}
	q.pending.Add(1)
	q.tasks <- task
	return nil
}

func (q *workerQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.execute(task)
	}
}

func (q *workerQueue) execute(task Task) {
	defer q.pending.Done()

	err := q.runGuarded(task)
	if err == nil {
		return
	}

	log.Printf("[TASK] %s attempt %d/%d failed: %v", task.Name, task.attempt+1, task.MaxAttempts, err)

	if task.attempt+1 >= task.MaxAttempts {
		if task.OnExhausted != nil {
			task.OnExhausted(q.baseCtx, err)
		}
		return
	}

	delay := time.Duration(0)
	if task.NextDelay != nil {
		delay = task.NextDelay(task.attempt)
	}
	task.attempt++

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		if task.OnExhausted != nil {
			task.OnExhausted(q.baseCtx, err)
		}
		return
	}
	q.pending.Add(1)
	q.mu.Unlock()

	retry := task
	time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				// Queue closed between scheduling and firing.
				q.pending.Done()
			}
		}()
		q.tasks <- retry
	})
}

func (q *workerQueue) runGuarded(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
			log.Printf("[TASK] %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(q.baseCtx, task.attempt)
}

// Shutdown stops accepting tasks and waits for in-flight work, bounded
// by the supplied context.
func (q *workerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(q.tasks)
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.cancel()
	}
}
