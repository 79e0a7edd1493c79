package domstate

import (
	"context"
	"sync"
)

// Task is a deferred side effect.
type Task func()

// Scheduler runs tasks after the current synchronous work has finished.
type Scheduler interface {
	Defer(task func())
}

// Queue is a turn-based task queue. Deferred tasks wait until the host calls
// RunPending, which models the next turn of an event loop.
type Queue struct {
	mu      sync.Mutex
	pending []func()
}

// Defer appends task to the queue.
func (q *Queue) Defer(task func()) {
	q.mu.Lock()
	q.pending = append(q.pending, task)
	q.mu.Unlock()
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RunPending runs the tasks queued before the call, in order. Tasks deferred
// while running wait for the next call. It returns the number of tasks run.
func (q *Queue) RunPending() int {
	q.mu.Lock()
	tasks := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, t := range tasks {
		t()
	}
	return len(tasks)
}

// Worker runs deferred tasks one at a time on a background goroutine, in
// submission order.
type Worker struct {
	tasks chan func()
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}
}

// NewWorker starts a Worker. It stops when ctx is done or Close is called.
func NewWorker(ctx context.Context) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		tasks: make(chan func(), 64),
		ctx:   ctx,
		stop:  cancel,
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Defer submits task. Tasks submitted after the worker stopped are dropped.
func (w *Worker) Defer(task func()) {
	if w.ctx.Err() != nil {
		return
	}
	select {
	case w.tasks <- task:
	case <-w.ctx.Done():
	}
}

// Close stops the worker and waits for the running task to return.
func (w *Worker) Close() {
	w.stop()
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.tasks:
			t()
		}
	}
}
