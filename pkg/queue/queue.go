// Package queue serializes automation work against the single shared
// browser session. Many concurrent producers enqueue named operations;
// one processing loop runs them strictly in arrival order, settling each
// caller's pending result exactly once. A task failure is isolated to its
// own caller and never stalls the loop.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/driftlab/qrpost/pkg/logging"
)

var queueDebugLog *logging.Logger

func init() {
	var err error
	queueDebugLog, err = logging.NewLogger("queue")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		queueDebugLog.Warnf("Failed to initialize queue logger, using stderr fallback: %v", err)
	}
}

var (
	// ErrClosed is returned by Enqueue once shutdown has begun.
	ErrClosed = errors.New("queue: closed")

	// ErrShutdown rejects tasks still waiting when shutdown begins.
	ErrShutdown = errors.New("queue: shut down before task could run")
)

// EnsureFunc prepares the shared resource before a task runs. A failure
// is delivered as the rejection of the task that triggered it; the loop
// continues with the next task, which gets a fresh attempt.
type EnsureFunc func(ctx context.Context) error

// Hooks are the lifecycle callbacks wired into the processing loop.
type Hooks struct {
	// Ensure runs before each task. Optional.
	Ensure EnsureFunc

	// AfterTask runs after each task settles, before the next task is
	// considered. This is where a per-task snapshot policy hangs.
	AfterTask func(ctx context.Context)

	// OnDrain runs when the loop empties the backlog, before the loop
	// yields to new enqueues. This is where drain-and-destroy eviction
	// hangs: no new task can start until it returns.
	OnDrain func(ctx context.Context)
}

// Status is a point-in-time snapshot of the queue for introspection.
type Status struct {
	// QueueLength counts tasks waiting to run, excluding the in-flight one
	QueueLength int `json:"queue_length"`

	// Processing reports whether a task is currently running
	Processing bool `json:"processing"`

	// CurrentOperation names the in-flight task, empty when idle
	CurrentOperation string `json:"current_operation,omitempty"`
}

// Queue is a FIFO serializer for automation tasks.
type Queue struct {
	hooks Hooks

	mu          sync.Mutex
	tasks       []*task
	processing  bool
	current     string
	closed      bool
	idleWaiters []chan struct{}
}

// New creates a queue with the given lifecycle hooks.
func New(hooks Hooks) *Queue {
	return &Queue{hooks: hooks}
}

// Enqueue appends a named operation and starts the processing loop if it
// is not already running. Safe for concurrent use; append order is the
// execution order. Returns ErrClosed once shutdown has begun.
func (q *Queue) Enqueue(name string, op Operation) (*Pending, error) {
	if op == nil {
		return nil, fmt.Errorf("queue: nil operation for task %q", name)
	}

	t := newTask(name, op)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.tasks = append(q.tasks, t)
	start := !q.processing
	if start {
		q.processing = true
	}
	queued := len(q.tasks)
	q.mu.Unlock()

	queueDebugLog.Debugf("Enqueued task %s (%s), %d waiting", t.name, t.id, queued)

	if start {
		go q.process()
	}

	return &Pending{task: t}, nil
}

// Status returns the current queue state.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Status{
		QueueLength:      len(q.tasks),
		Processing:       q.processing,
		CurrentOperation: q.current,
	}
}

// Close stops the queue: no new tasks are accepted, tasks still waiting
// are rejected with ErrShutdown, and the call blocks until the in-flight
// task (if any) settles or ctx expires. The caller owns the grace period
// via ctx.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	waiting := q.tasks
	q.tasks = nil
	processing := q.processing

	var idle chan struct{}
	if processing {
		idle = make(chan struct{})
		q.idleWaiters = append(q.idleWaiters, idle)
	}
	q.mu.Unlock()

	for _, t := range waiting {
		queueDebugLog.Infof("Rejecting queued task %s (%s): shutdown", t.name, t.id)
		t.settle(nil, ErrShutdown)
	}

	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		queueDebugLog.Warnf("Gave up waiting for in-flight task: %v", ctx.Err())
		return ctx.Err()
	}
}

// process is the single consumer loop. Exactly one instance runs at a
// time, guarded by q.processing.
func (q *Queue) process() {
	ctx := context.Background()

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			// Keep q.processing set while the drain hook runs so a
			// concurrent Enqueue appends instead of racing a second loop;
			// drain-and-destroy teardown therefore completes before any
			// new task's resource creation starts.
			closed := q.closed
			q.current = ""
			q.mu.Unlock()

			if q.hooks.OnDrain != nil && !closed {
				q.hooks.OnDrain(ctx)
			}

			q.mu.Lock()
			if len(q.tasks) > 0 && !q.closed {
				q.mu.Unlock()
				continue
			}
			q.processing = false
			waiters := q.idleWaiters
			q.idleWaiters = nil
			q.mu.Unlock()

			for _, w := range waiters {
				close(w)
			}
			return
		}

		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.current = t.name
		q.mu.Unlock()

		q.run(ctx, t)

		if q.hooks.AfterTask != nil {
			q.hooks.AfterTask(ctx)
		}
	}
}

// run executes one task and settles it. All failure modes, including a
// panicking operation, end as a rejection of this task only.
func (q *Queue) run(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			queueDebugLog.Errorf("Task %s (%s) panicked: %v", t.name, t.id, r)
			t.settle(nil, fmt.Errorf("task %q panicked: %v", t.name, r))
		}
	}()

	waited := time.Since(t.enqueuedAt)
	queueDebugLog.Debugf("Running task %s (%s) after %v in queue", t.name, t.id, waited)

	if q.hooks.Ensure != nil {
		if err := q.hooks.Ensure(ctx); err != nil {
			queueDebugLog.Warnf("Resource not ready for task %s: %v", t.name, err)
			t.settle(nil, fmt.Errorf("prepare session for %q: %w", t.name, err))
			return
		}
	}

	value, err := t.op(ctx)
	if err != nil {
		queueDebugLog.Warnf("Task %s (%s) failed: %v", t.name, t.id, err)
	} else {
		queueDebugLog.Debugf("Task %s (%s) completed", t.name, t.id)
	}
	t.settle(value, err)
}
