package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitAll waits for every pending handle with a shared deadline.
func waitAll(t *testing.T, pendings []*Pending) []Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make([]Result, len(pendings))
	for i, p := range pendings {
		value, err := p.Wait(ctx)
		require.NotErrorIs(t, err, context.DeadlineExceeded, "task %s did not settle", p.Name())
		results[i] = Result{Value: value, Err: err}
	}
	return results
}

func TestEnqueueRunsTask(t *testing.T) {
	q := New(Hooks{})

	p, err := q.Enqueue("hello", func(ctx context.Context) (any, error) {
		return "world", nil
	})
	require.NoError(t, err)

	value, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "world", value)

	assert.Equal(t, Status{}, q.waitIdleStatus(t))
}

// waitIdleStatus polls until the loop has fully stopped, then returns the
// final status. The loop clears Processing slightly after the last task
// settles, so tests that assert on the drained state need this.
func (q *Queue) waitIdleStatus(t *testing.T) Status {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := q.Status()
		if !st.Processing && st.QueueLength == 0 {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("queue never went idle")
	return Status{}
}

func TestFIFOOrderAcrossConcurrentProducers(t *testing.T) {
	var mu sync.Mutex
	var started []string

	// A slow gate so tasks pile up behind the first one.
	gate := make(chan struct{})
	q := New(Hooks{})

	first, err := q.Enqueue("gate", func(ctx context.Context) (any, error) {
		<-gate
		return nil, nil
	})
	require.NoError(t, err)

	// Sequential enqueues while the loop is blocked: arrival order is
	// well-defined and must equal execution order.
	pendings := []*Pending{first}
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("task-%02d", i)
		p, err := q.Enqueue(name, func(ctx context.Context) (any, error) {
			mu.Lock()
			started = append(started, name)
			mu.Unlock()
			return nil, nil
		})
		require.NoError(t, err)
		pendings = append(pendings, p)
	}

	close(gate)
	waitAll(t, pendings)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, 20)
	for i, name := range started {
		assert.Equal(t, fmt.Sprintf("task-%02d", i), name)
	}
}

func TestMutualExclusion(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	q := New(Hooks{})

	var pendings []*Pending
	for i := 0; i < 30; i++ {
		p, err := q.Enqueue("overlap-probe", func(ctx context.Context) (any, error) {
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
		pendings = append(pendings, p)
	}

	waitAll(t, pendings)
	assert.Equal(t, int32(1), maxInFlight.Load(), "two operation bodies overlapped")
}

// Scenario: ok("a"), fail("b"), ok("c") settle in order; the failure is
// isolated and the queue fully drains.
func TestFailureIsolation(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	boom := errors.New("site rejected the request")
	q := New(Hooks{})

	pa, err := q.Enqueue("a", func(ctx context.Context) (any, error) {
		record("a")
		return "a", nil
	})
	require.NoError(t, err)

	pb, err := q.Enqueue("b", func(ctx context.Context) (any, error) {
		record("b")
		return nil, boom
	})
	require.NoError(t, err)

	pc, err := q.Enqueue("c", func(ctx context.Context) (any, error) {
		record("c")
		return "c", nil
	})
	require.NoError(t, err)

	va, errA := pa.Wait(context.Background())
	_, errB := pb.Wait(context.Background())
	vc, errC := pc.Wait(context.Background())

	assert.NoError(t, errA)
	assert.Equal(t, "a", va)
	assert.ErrorIs(t, errB, boom)
	assert.NoError(t, errC)
	assert.Equal(t, "c", vc)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	mu.Unlock()

	st := q.waitIdleStatus(t)
	assert.Zero(t, st.QueueLength)
}

func TestPanicIsolatedToTask(t *testing.T) {
	q := New(Hooks{})

	pa, err := q.Enqueue("panics", func(ctx context.Context) (any, error) {
		panic("selector went away")
	})
	require.NoError(t, err)

	pb, err := q.Enqueue("survives", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, errA := pa.Wait(context.Background())
	require.Error(t, errA)
	assert.Contains(t, errA.Error(), "panicked")

	value, errB := pb.Wait(context.Background())
	require.NoError(t, errB)
	assert.Equal(t, "ok", value)
}

func TestEnsureFailureRejectsOnlyTriggeringTask(t *testing.T) {
	launchErr := errors.New("browser failed to launch")
	var attempts atomic.Int32

	q := New(Hooks{
		Ensure: func(ctx context.Context) error {
			// First attempt fails, later attempts succeed: the next task
			// must get the fresh attempt.
			if attempts.Add(1) == 1 {
				return launchErr
			}
			return nil
		},
	})

	pa, err := q.Enqueue("first", func(ctx context.Context) (any, error) {
		return "first", nil
	})
	require.NoError(t, err)

	pb, err := q.Enqueue("second", func(ctx context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err)

	_, errA := pa.Wait(context.Background())
	assert.ErrorIs(t, errA, launchErr)

	value, errB := pb.Wait(context.Background())
	require.NoError(t, errB)
	assert.Equal(t, "second", value)

	assert.Equal(t, int32(2), attempts.Load())
}

func TestStatusWhileProcessing(t *testing.T) {
	gate := make(chan struct{})
	running := make(chan struct{})

	q := New(Hooks{})

	p1, err := q.Enqueue("long-running", func(ctx context.Context) (any, error) {
		close(running)
		<-gate
		return nil, nil
	})
	require.NoError(t, err)

	<-running
	p2, err := q.Enqueue("waiting", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	st := q.Status()
	assert.True(t, st.Processing)
	assert.Equal(t, "long-running", st.CurrentOperation)
	assert.Equal(t, 1, st.QueueLength)

	close(gate)
	waitAll(t, []*Pending{p1, p2})
}

func TestDrainHookRunsBeforeNextTask(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	drained := make(chan struct{}, 4)
	q := New(Hooks{
		OnDrain: func(ctx context.Context) {
			record("drain")
			drained <- struct{}{}
		},
	})

	p1, err := q.Enqueue("one", func(ctx context.Context) (any, error) {
		record("one")
		return nil, nil
	})
	require.NoError(t, err)
	waitAll(t, []*Pending{p1})
	<-drained

	p2, err := q.Enqueue("two", func(ctx context.Context) (any, error) {
		record("two")
		return nil, nil
	})
	require.NoError(t, err)
	waitAll(t, []*Pending{p2})
	<-drained

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "drain", "two", "drain"}, events)
}

func TestAfterTaskHookRunsPerTask(t *testing.T) {
	var afterCount atomic.Int32
	q := New(Hooks{
		AfterTask: func(ctx context.Context) { afterCount.Add(1) },
	})

	var pendings []*Pending
	for i := 0; i < 3; i++ {
		p, err := q.Enqueue("n", func(ctx context.Context) (any, error) { return nil, nil })
		require.NoError(t, err)
		pendings = append(pendings, p)
	}
	waitAll(t, pendings)
	q.waitIdleStatus(t)

	assert.Equal(t, int32(3), afterCount.Load())
}

// Scenario: shutdown with one task mid-flight and three queued. The
// in-flight task is awaited; the queued three are rejected with a
// shutdown error.
func TestCloseRejectsBacklogAndAwaitsInFlight(t *testing.T) {
	gate := make(chan struct{})
	running := make(chan struct{})

	q := New(Hooks{})

	inFlight, err := q.Enqueue("in-flight", func(ctx context.Context) (any, error) {
		close(running)
		<-gate
		return "finished", nil
	})
	require.NoError(t, err)
	<-running

	var queued []*Pending
	for i := 0; i < 3; i++ {
		p, err := q.Enqueue(fmt.Sprintf("queued-%d", i), func(ctx context.Context) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
		queued = append(queued, p)
	}

	closeDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closeDone <- q.Close(ctx)
	}()

	// Queued tasks reject promptly, before the in-flight task finishes.
	for _, p := range queued {
		_, err := p.Wait(context.Background())
		assert.ErrorIs(t, err, ErrShutdown)
	}

	// Release the in-flight task; Close returns once it settles.
	close(gate)
	require.NoError(t, <-closeDone)

	value, err := inFlight.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finished", value)

	// New work is refused after shutdown.
	_, err = q.Enqueue("late", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseGracePeriodExpires(t *testing.T) {
	gate := make(chan struct{})
	running := make(chan struct{})
	defer close(gate)

	q := New(Hooks{})

	_, err := q.Enqueue("stuck", func(ctx context.Context) (any, error) {
		close(running)
		<-gate
		return nil, nil
	})
	require.NoError(t, err)
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = q.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseIdempotent(t *testing.T) {
	q := New(Hooks{})
	require.NoError(t, q.Close(context.Background()))
	require.NoError(t, q.Close(context.Background()))
}

func TestConcurrentEnqueueAllSettle(t *testing.T) {
	var ran atomic.Int32
	q := New(Hooks{})

	const producers = 50
	pendings := make([]*Pending, producers)
	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(i int) {
			defer wg.Done()
			p, err := q.Enqueue(fmt.Sprintf("producer-%d", i), func(ctx context.Context) (any, error) {
				ran.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
			pendings[i] = p
		}(i)
	}
	wg.Wait()

	waitAll(t, pendings)
	assert.Equal(t, int32(producers), ran.Load())

	st := q.waitIdleStatus(t)
	assert.Zero(t, st.QueueLength)
	assert.False(t, st.Processing)
}
