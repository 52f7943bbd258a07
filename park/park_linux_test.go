//go:build linux

package park

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/vthread-runtime/poller"
	"github.com/searchktools/vthread-runtime/reactor"
	"github.com/searchktools/vthread-runtime/vthread"
)

// recordingResumer collects every task handed back to it, standing in
// for the scheduler's lowest-load placement during these tests.
type recordingResumer struct {
	resumed chan *vthread.Task
}

func newRecordingResumer() *recordingResumer {
	return &recordingResumer{resumed: make(chan *vthread.Task, 16)}
}

func (r *recordingResumer) Resume(t *vthread.Task) {
	r.resumed <- t
}

func newCoordinatorForTest(t *testing.T, expiry, sweep time.Duration) (*Coordinator, *recordingResumer) {
	t.Helper()
	r, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	resumer := newRecordingResumer()
	return NewCoordinator(r, resumer, expiry, sweep), resumer
}

func TestCoordinator_AwaitIOResumesOnReadiness(t *testing.T) {
	coord, resumer := newCoordinatorForTest(t, 30*time.Second, 50*time.Millisecond)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	if err := poller.SetNonblock(fds[0]); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	resultCh := make(chan int, 1)
	task := vthread.NewTask(coord, func(ctl *vthread.Control) {
		n, err := ctl.AwaitIO(fds[0], poller.Readable)
		if err != nil {
			t.Errorf("unexpected AwaitIO error: %v", err)
		}
		resultCh <- n
	})

	if reason := task.Resume(); reason != vthread.ParkForIO {
		t.Fatalf("expected ParkForIO, got %v", reason)
	}
	if coord.Len() != 1 {
		t.Fatalf("expected one parked entry, got %d", coord.Len())
	}

	if _, err := unix.Write(fds[1], []byte("go")); err != nil {
		t.Fatalf("write to peer: %v", err)
	}

	go coord.PollOnce(2000)

	select {
	case resumed := <-resumer.resumed:
		if resumed != task {
			t.Fatal("resumer received an unexpected task")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for resumption")
	}
	if coord.Len() != 0 {
		t.Fatalf("expected parking table to be empty after resumption, got %d entries", coord.Len())
	}

	if reason := task.Resume(); reason != vthread.Completed {
		t.Fatalf("expected Completed, got %v", reason)
	}
	if got := <-resultCh; got <= 0 {
		t.Fatalf("expected a positive readiness result, got %d", got)
	}
}

func TestCoordinator_SweepTimesOutStaleEntries(t *testing.T) {
	coord, resumer := newCoordinatorForTest(t, 20*time.Millisecond, 5*time.Millisecond)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	if err := poller.SetNonblock(fds[0]); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	task := vthread.NewTask(coord, func(ctl *vthread.Control) {
		if _, err := ctl.AwaitIO(fds[0], poller.Readable); err == nil {
			t.Error("AwaitIO returned instead of the goroutine being destroyed mid-suspend")
		}
	})

	if reason := task.Resume(); reason != vthread.ParkForIO {
		t.Fatalf("expected ParkForIO, got %v", reason)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		coord.SweepOnce()
		if task.Done() {
			select {
			case <-resumer.resumed:
				t.Fatal("sweep must destroy the stale entry, not resume it")
			default:
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for sweep to evict the stale entry")
}

func TestCoordinator_CancelAllOnShutdown(t *testing.T) {
	coord, resumer := newCoordinatorForTest(t, 30*time.Second, 50*time.Millisecond)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	if err := poller.SetNonblock(fds[0]); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	task := vthread.NewTask(coord, func(ctl *vthread.Control) {
		if _, err := ctl.AwaitIO(fds[0], poller.Readable); err == nil {
			t.Error("AwaitIO returned instead of the goroutine being destroyed mid-suspend")
		}
	})

	task.Resume()

	coord.CancelAll()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task.Done() {
			select {
			case <-resumer.resumed:
				t.Fatal("cancellation must destroy the task, not resume it")
			default:
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for cancellation to destroy the task")
}
