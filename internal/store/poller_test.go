package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoller_Start_runsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(5*time.Millisecond, func(context.Context) { calls.Add(1) }, nil)

	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 2 })
	if !p.Running() {
		t.Error("Running() = false while started")
	}

	p.Stop()
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("calls grew from %d to %d after Stop()", after, calls.Load())
	}
	if p.Running() {
		t.Error("Running() = true after Stop()")
	}
}

func TestPoller_Start_replacesPreviousLoop(t *testing.T) {
	var active, maxActive atomic.Int32
	check := func(context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}
	p := NewPoller(2*time.Millisecond, check, nil)
	for i := 0; i < 5; i++ {
		p.Start(context.Background())
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	if got := maxActive.Load(); got > 1 {
		t.Errorf("max concurrent checks = %d, want 1", got)
	}
}

func TestPoller_Start_stopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(5*time.Millisecond, func(context.Context) {}, nil)
	p.Start(ctx)
	cancel()
	waitFor(t, func() bool { return !p.Running() })
	p.Stop()
}
