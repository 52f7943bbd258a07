// Package vthread implements the virtual thread abstraction: a
// cooperatively scheduled unit of work that runs until it hits a
// suspension point (an explicit yield or an await on I/O readiness),
// then hands control back to whichever worker resumed it.
//
// Go has no public stackful-coroutine primitive, so a Task is backed by
// a dedicated goroutine that blocks on a pair of rendezvous channels; a
// worker's Resume call is exactly one step of that goroutine's
// execution between suspension points, in the same way the reference
// implementation's coroutine handle steps a single C++20 coroutine
// frame.
package vthread

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/searchktools/vthread-runtime/poller"
)

// SuspendReason identifies why a task most recently gave up the
// worker it was running on.
type SuspendReason int

const (
	// None is the zero value: the task has never suspended.
	None SuspendReason = iota
	// ParkForIO means the task is waiting on socket readiness.
	ParkForIO
	// Yield means the task voluntarily gave up its turn.
	Yield
	// Completed means the task's body function returned or panicked.
	Completed
	// Preempted means the scheduler is reclaiming the worker from a
	// task that ran unusually long on a single resume.
	Preempted
)

func (r SuspendReason) String() string {
	switch r {
	case None:
		return "none"
	case ParkForIO:
		return "park-for-io"
	case Yield:
		return "yield"
	case Completed:
		return "completed"
	case Preempted:
		return "preempted"
	default:
		return "unknown"
	}
}

// State is the task's externally observable lifecycle state.
type State int32

const (
	StateReady State = iota
	StateRunning
	StateParkedIO
	StateYielded
	StateCompleted
)

// Awaiter is implemented by whatever owns the parking table and
// reactor — normally the scheduler — and is the only way a task body
// can suspend itself for I/O. Task and Control deliberately know
// nothing about parking tables or reactors; that keeps this package
// free of a dependency on the scheduler.
type Awaiter interface {
	AwaitIO(t *Task, fd int, interest poller.Interest) (int, error)
}

var nextID atomic.Uint64

// Task is a virtual thread: exclusively owned at any instant by one of
// a run queue, the parking table, or the worker currently running it.
// A Task must never be copied after construction.
type Task struct {
	id     uint64
	env    Awaiter
	stepCh chan struct{}
	yieldCh chan struct{}

	state    atomic.Int32
	reason   SuspendReason // touched only while the counterpart side is blocked
	ioResult int
	done     atomic.Bool
	destroyed atomic.Bool

	affinity    atomic.Int32
	lastResumed atomic.Int64 // UnixNano
}

// affinityUnset marks a task with no worker preference.
const affinityUnset = -1

// NewTask constructs a task in the Ready state. fn runs on the task's
// dedicated goroutine once the first Resume call arrives; it receives a
// Control used to yield or await I/O.
func NewTask(env Awaiter, fn func(ctl *Control)) *Task {
	t := &Task{
		id:     nextID.Add(1),
		env:    env,
		stepCh: make(chan struct{}),
		yieldCh: make(chan struct{}),
	}
	t.affinity.Store(affinityUnset)
	t.state.Store(int32(StateReady))
	go t.run(fn)
	return t
}

func (t *Task) run(fn func(ctl *Control)) {
	<-t.stepCh
	if t.destroyed.Load() {
		// Destroyed before it ever ran a single step: nothing to
		// unwind, just end the goroutine.
		return
	}
	ctl := &Control{t: t}
	func() {
		defer func() {
			// A panicking task body only terminates that task; it must
			// not take the worker goroutine down with it.
			recover()
		}()
		fn(ctl)
	}()
	t.reason = Completed
	t.done.Store(true)
	t.yieldCh <- struct{}{}
}

// suspend is the single blocking primitive every suspension point
// funnels through: it publishes reason, wakes whichever Resume call is
// waiting, and blocks until the next Resume. It returns whatever value
// SetIOResult stashed since the task last ran.
func (t *Task) suspend(reason SuspendReason) int {
	t.reason = reason
	t.yieldCh <- struct{}{}
	<-t.stepCh
	if t.destroyed.Load() {
		// The scheduler tore this task down while it was parked or
		// yielded rather than resuming it — end the goroutine right
		// here instead of returning into the task body, matching
		// original_source's coro_.destroy() semantics: a destroyed
		// task never runs another instruction.
		runtime.Goexit()
	}
	return t.ioResult
}

// ID returns the task's process-wide unique identifier.
func (t *Task) ID() uint64 { return t.id }

// Done reports whether the task's body has returned or panicked, or the
// task was destroyed before either happened.
func (t *Task) Done() bool { return t.done.Load() || t.destroyed.Load() }

// Destroy forcibly ends the task's goroutine. It is the scheduler's
// teardown primitive — used by a timeout sweep, a cancelled parking
// entry, or a worker that just saw the task body return — and is safe
// to call only once the task is Done or the scheduler has exclusive
// ownership of it (it is not sitting in any run queue or being resumed
// concurrently), the same ownership discipline Resume already depends
// on. Calling it on a task currently blocked in suspend makes that
// goroutine exit at its current suspension point, running no further
// body code; calling it on an already-completed or already-destroyed
// task is a safe no-op. Grounded on original_source/include/vthread.hpp's
// coro_.destroy().
func (t *Task) Destroy() {
	if !t.destroyed.CompareAndSwap(false, true) {
		return
	}
	close(t.stepCh)
}

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// SetState updates the task's lifecycle state. Called by the scheduler
// as the task moves between the run queue, the parking table, and
// execution.
func (t *Task) SetState(s State) { t.state.Store(int32(s)) }

// Affinity returns the worker index this task prefers, or -1 if it has
// none.
func (t *Task) Affinity() int { return int(t.affinity.Load()) }

// SetAffinity records a preferred worker index.
func (t *Task) SetAffinity(idx int) { t.affinity.Store(int32(idx)) }

// LastResumed returns the time of the task's most recent Resume call.
func (t *Task) LastResumed() time.Time {
	ns := t.lastResumed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SetLastResumed records the time a worker is about to call Resume,
// used by the scheduler for preemption accounting.
func (t *Task) SetLastResumed(when time.Time) {
	t.lastResumed.Store(when.UnixNano())
}

// SuspendReason returns the reason recorded by the task's most recent
// suspension.
func (t *Task) SuspendReason() SuspendReason { return t.reason }

// SetIOResult stashes the result of a completed I/O wait so the task's
// AwaitIO call can return it once resumed. Must be called before the
// task is handed back to a worker.
func (t *Task) SetIOResult(result int) { t.ioResult = result }

// SuspendAndWaitForIO is the ParkForIO half of the suspend protocol,
// exported for use by an Awaiter implementation (normally park.
// Coordinator) after it has registered the task with the parking table
// and reactor. It must not be called from anywhere but the task's own
// goroutine.
func (t *Task) SuspendAndWaitForIO() int {
	return t.suspend(ParkForIO)
}

// Resume runs the task until its next suspension point (or completion)
// and reports why it stopped. Only the worker that currently owns the
// task may call Resume, and never concurrently with another Resume on
// the same task.
//
// Resume has no cancellation escape hatch: spec.md explicitly disclaims
// any per-task cancellation API, and abandoning either channel operation
// mid-rendezvous would desynchronize stepCh/yieldCh permanently — the
// task's goroutine would eventually block forever sending on yieldCh
// with nothing left to receive it. A worker that wants to reclaim
// control from a task waits for it to reach a suspension point instead
// of interrupting Resume itself; that is what Preempted (decided by the
// caller from elapsed time, not from inside Resume) already models.
func (t *Task) Resume() SuspendReason {
	t.state.Store(int32(StateRunning))
	t.stepCh <- struct{}{}
	<-t.yieldCh
	return t.reason
}

// Control is the handle a task body uses to suspend itself. It is only
// ever accessed by the goroutine running the task body, so it needs no
// synchronization of its own.
type Control struct {
	t *Task
}

// Task returns the underlying Task, for callers that need to hand it
// to something outside this package's Awaiter contract, such as a
// parking table.
func (c *Control) Task() *Task { return c.t }

// Yield voluntarily gives up the worker; the scheduler decides where
// (and how soon) the task runs again.
func (c *Control) Yield() {
	c.t.suspend(Yield)
}

// AwaitIO suspends the task until fd becomes ready for interest,
// delegating the parking-table and reactor bookkeeping to the injected
// Awaiter. It returns a negative result code when registration fails
// or the backend reports an I/O error. A task that times out or is
// cancelled while parked is destroyed instead, so AwaitIO never returns
// in those cases.
func (c *Control) AwaitIO(fd int, interest poller.Interest) (int, error) {
	return c.t.env.AwaitIO(c.t, fd, interest)
}
