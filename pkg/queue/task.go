package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation is one opaque unit of automation work. It runs with exclusive
// access to the live browser session; the queue guarantees no two
// operations ever execute concurrently.
type Operation func(ctx context.Context) (any, error)

// Result is the settled outcome of a task.
type Result struct {
	Value any
	Err   error
}

// task is the queue's internal record of one submitted operation.
// It is owned exclusively by the queue from enqueue until settlement.
type task struct {
	id         string
	name       string
	op         Operation
	enqueuedAt time.Time

	mu         sync.Mutex
	result     *Result
	done       chan struct{}
	settleOnce sync.Once
}

func newTask(name string, op Operation) *task {
	return &task{
		id:         uuid.New().String(),
		name:       name,
		op:         op,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// settle records the outcome exactly once and wakes all waiters. Later
// calls are no-ops, so a task rejected during shutdown cannot be settled
// again by the processing loop.
func (t *task) settle(value any, err error) {
	t.settleOnce.Do(func() {
		t.mu.Lock()
		t.result = &Result{Value: value, Err: err}
		t.mu.Unlock()
		close(t.done)
	})
}

// Pending is the caller's handle to observe a task's eventual outcome.
type Pending struct {
	task *task
}

// Name returns the task's name.
func (p *Pending) Name() string {
	return p.task.name
}

// ID returns the task's unique identifier.
func (p *Pending) ID() string {
	return p.task.id
}

// Wait blocks until the task settles or ctx is done. Safe to call from
// multiple goroutines; all waiters observe the same settled result.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.task.done:
		p.task.mu.Lock()
		res := *p.task.result
		p.task.mu.Unlock()
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
