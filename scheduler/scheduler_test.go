package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/searchktools/vthread-runtime/vthread"
)

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestScheduler_SpawnRunsToCompletion(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(4))

	var completed atomic.Int64
	const n = 500
	for i := 0; i < n; i++ {
		if _, err := s.Spawn(func(ctl *vthread.Control) {
			completed.Add(1)
		}); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for completed.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := completed.Load(); got != n {
		t.Fatalf("expected %d tasks to complete, got %d", n, got)
	}
}

func TestScheduler_YieldLoopEventuallyCompletes(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(2))

	done := make(chan struct{})
	_, err := s.Spawn(func(ctl *vthread.Control) {
		for i := 0; i < 50; i++ {
			ctl.Yield()
		}
		close(done)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a yield loop to finish")
	}
}

func TestScheduler_SpawnWithAffinityRecordsHint(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(4))

	ranOn := make(chan int, 1)
	_, err := s.SpawnWithAffinity(2, func(ctl *vthread.Control) {
		ranOn <- ctl.Task().Affinity()
	})
	if err != nil {
		t.Fatalf("SpawnWithAffinity: %v", err)
	}

	select {
	case idx := <-ranOn:
		if idx != 2 {
			t.Fatalf("expected affinity 2, got %d", idx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestScheduler_WorkStealingDrainsAnOverloadedWorker(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(4))

	var completed atomic.Int64
	const n = 1000
	for i := 0; i < n; i++ {
		if _, err := s.SpawnWithAffinity(0, func(ctl *vthread.Control) {
			completed.Add(1)
		}); err != nil {
			t.Fatalf("SpawnWithAffinity: %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for completed.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := completed.Load(); got != n {
		t.Fatalf("expected %d tasks to complete, got %d", n, got)
	}

	stats := s.Stats()
	executedOnOthers := false
	for i, count := range stats.PerWorkerExecuted {
		if i != 0 && count > 0 {
			executedOnOthers = true
		}
	}
	if !executedOnOthers {
		t.Fatal("expected at least one non-owning worker to have executed a stolen task")
	}
	if stats.Steals == 0 {
		t.Fatal("expected a nonzero steal count when one worker is saturated and the rest are idle")
	}
}

func TestScheduler_SpawnAfterStopFails(t *testing.T) {
	s, err := New(WithWorkers(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := s.Spawn(func(ctl *vthread.Control) {}); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestScheduler_StatsAreMonotonic(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(2))

	for i := 0; i < 50; i++ {
		s.Spawn(func(ctl *vthread.Control) {})
	}
	time.Sleep(100 * time.Millisecond)
	first := s.Stats()

	for i := 0; i < 50; i++ {
		s.Spawn(func(ctl *vthread.Control) {})
	}
	time.Sleep(100 * time.Millisecond)
	second := s.Stats()

	if second.TotalScheduled < first.TotalScheduled {
		t.Fatalf("TotalScheduled decreased: %d -> %d", first.TotalScheduled, second.TotalScheduled)
	}
	if second.ContextSwitches < first.ContextSwitches {
		t.Fatalf("ContextSwitches decreased: %d -> %d", first.ContextSwitches, second.ContextSwitches)
	}
}
