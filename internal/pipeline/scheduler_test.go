package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls   atomic.Int32
	running atomic.Bool
	hold    time.Duration
	mu      sync.Mutex
	ctxs    []context.Context
}

func (c *countingRunner) Run(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer c.running.Store(false)
	c.calls.Add(1)
	c.mu.Lock()
	c.ctxs = append(c.ctxs, ctx)
	c.mu.Unlock()
	if c.hold > 0 {
		select {
		case <-time.After(c.hold):
		case <-ctx.Done():
		}
	}
	return Report{}, nil
}

func (c *countingRunner) Running() bool { return c.running.Load() }

func startScheduler(t *testing.T, s *Scheduler) (cancel func(), done <-chan struct{}) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(ch)
	}()
	t.Cleanup(func() {
		cancelFn()
		<-ch
	})
	return cancelFn, ch
}

func TestScheduler_RunOnStart(t *testing.T) {
	r := &countingRunner{}
	startScheduler(t, NewScheduler(r, time.Hour, WithRunOnStart(true)))

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_NoRunOnStart(t *testing.T) {
	r := &countingRunner{}
	startScheduler(t, NewScheduler(r, time.Hour))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, r.calls.Load())
}

func TestScheduler_Interval(t *testing.T) {
	r := &countingRunner{}
	startScheduler(t, NewScheduler(r, 10*time.Millisecond))

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_Trigger(t *testing.T) {
	r := &countingRunner{}
	s := NewScheduler(r, time.Hour)
	startScheduler(t, s)

	s.Trigger()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Trigger()
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_TriggerDuringRunIsSkipped(t *testing.T) {
	r := &countingRunner{hold: 100 * time.Millisecond}
	s := NewScheduler(r, time.Hour, WithRunOnStart(true))
	startScheduler(t, s)

	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)
	s.Trigger()
	time.Sleep(20 * time.Millisecond)

	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestScheduler_TriggerNeverBlocks(t *testing.T) {
	s := NewScheduler(&countingRunner{}, time.Hour)
	for range 10 {
		s.Trigger()
	}
}

func TestScheduler_ShutdownWaitsForRun(t *testing.T) {
	r := &countingRunner{hold: time.Hour}
	s := NewScheduler(r, time.Hour, WithRunOnStart(true))
	cancel, done := startScheduler(t, s)

	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
		assert.False(t, r.Running())
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
