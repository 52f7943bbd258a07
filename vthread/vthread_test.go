package vthread

import (
	"testing"
	"time"

	"github.com/searchktools/vthread-runtime/poller"
)

type fakeAwaiter struct {
	result int
	err    error
}

func (f *fakeAwaiter) AwaitIO(t *Task, fd int, interest poller.Interest) (int, error) {
	return t.suspend(ParkForIO), f.err
}

func TestTask_YieldLoopThenComplete(t *testing.T) {
	ran := 0
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {
		for i := 0; i < 3; i++ {
			ran++
			ctl.Yield()
		}
		ran++
	})

	for i := 0; i < 4; i++ {
		reason := task.Resume()
		if i < 3 && reason != Yield {
			t.Fatalf("resume %d: expected Yield, got %v", i, reason)
		}
		if i == 3 && reason != Completed {
			t.Fatalf("resume %d: expected Completed, got %v", i, reason)
		}
	}
	if ran != 4 {
		t.Fatalf("expected the body to run 4 times, ran %d", ran)
	}
	if !task.Done() {
		t.Fatal("expected task to report Done after completion")
	}
}

func TestTask_AwaitIOReturnsStashedResult(t *testing.T) {
	env := &fakeAwaiter{}
	resultCh := make(chan int, 1)
	task := NewTask(env, func(ctl *Control) {
		n, err := ctl.AwaitIO(7, poller.Readable)
		if err != nil {
			t.Errorf("unexpected AwaitIO error: %v", err)
		}
		resultCh <- n
	})

	reason := task.Resume()
	if reason != ParkForIO {
		t.Fatalf("expected ParkForIO, got %v", reason)
	}

	task.SetIOResult(42)
	reason = task.Resume()
	if reason != Completed {
		t.Fatalf("expected Completed after resuming from I/O, got %v", reason)
	}
	if got := <-resultCh; got != 42 {
		t.Fatalf("expected stashed result 42, got %d", got)
	}
}

func TestTask_PanicOnlyTerminatesTheTask(t *testing.T) {
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {
		panic("boom")
	})
	reason := task.Resume()
	if reason != Completed {
		t.Fatalf("expected a panicking body to report Completed, got %v", reason)
	}
	if !task.Done() {
		t.Fatal("expected Done after a panicking body")
	}
}

func TestTask_DestroyEndsParkedTaskWithoutResuming(t *testing.T) {
	ranPastAwait := false
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {
		ctl.AwaitIO(7, poller.Readable)
		ranPastAwait = true
	})

	reason := task.Resume()
	if reason != ParkForIO {
		t.Fatalf("expected ParkForIO, got %v", reason)
	}

	task.Destroy()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.Done() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !task.Done() {
		t.Fatal("expected Destroy to mark the task Done")
	}
	if ranPastAwait {
		t.Fatal("a destroyed task must never run past its suspension point")
	}
}

func TestTask_DestroyOnCompletedTaskIsSafeNoOp(t *testing.T) {
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {})
	if reason := task.Resume(); reason != Completed {
		t.Fatalf("expected Completed, got %v", reason)
	}
	task.Destroy()
	task.Destroy()
	if !task.Done() {
		t.Fatal("expected Done to remain true after redundant Destroy calls")
	}
}

func TestTask_DestroyBeforeFirstResumeSkipsBody(t *testing.T) {
	ran := false
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {
		ran = true
	})
	task.Destroy()
	if !task.Done() {
		t.Fatal("expected Done immediately after Destroy")
	}
	time.Sleep(10 * time.Millisecond)
	if ran {
		t.Fatal("a task destroyed before its first resume must never run its body")
	}
}

func TestTask_AffinityDefaultsUnset(t *testing.T) {
	task := NewTask(&fakeAwaiter{}, func(ctl *Control) {})
	if task.Affinity() != -1 {
		t.Fatalf("expected default affinity -1, got %d", task.Affinity())
	}
	task.SetAffinity(3)
	if task.Affinity() != 3 {
		t.Fatalf("expected affinity 3, got %d", task.Affinity())
	}
}
