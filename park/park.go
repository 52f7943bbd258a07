// Package park implements the parking table (mapping a suspended
// task's file descriptor to its identity and wait start time) and the
// I/O-await primitive built on top of it. Together they are what turns
// a reactor readiness event into a resumed virtual thread.
package park

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/vthread-runtime/poller"
	"github.com/searchktools/vthread-runtime/reactor"
	"github.com/searchktools/vthread-runtime/vthread"
)

// ErrAlreadyParked is returned when a task tries to await I/O on an fd
// that already has a pending registration. Two virtual threads never
// share a socket, so this signals a programming error in the caller; it
// is logged and surfaced rather than treated as fatal.
var ErrAlreadyParked = errors.New("park: fd already has a pending io registration")

// Resumer schedules a resumed task back onto a worker. The scheduler
// implements this; park never touches worker queues directly.
type Resumer interface {
	Resume(t *vthread.Task)
}

type entry struct {
	task     *vthread.Task
	fd       int
	interest poller.Interest
	start    time.Time
}

// Table tracks every task currently parked for I/O, keyed by fd. A
// task's identity plus its fd is enough to key the table because a
// socket is only ever awaited by the one virtual thread that owns it.
type Table struct {
	mu   sync.Mutex
	byFD map[int]*entry
}

// NewTable constructs an empty parking table.
func NewTable() *Table {
	return &Table{byFD: make(map[int]*entry)}
}

func (t *Table) insert(task *vthread.Task, fd int, interest poller.Interest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byFD[fd]; exists {
		return ErrAlreadyParked
	}
	t.byFD[fd] = &entry{task: task, fd: fd, interest: interest, start: time.Now()}
	return nil
}

func (t *Table) remove(fd int) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byFD[fd]
	if ok {
		delete(t.byFD, fd)
	}
	return e, ok
}

// Len reports how many tasks are currently parked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byFD)
}

// sweepExpired removes and returns every entry parked longer than
// maxAge.
func (t *Table) sweepExpired(maxAge time.Duration) []*entry {
	now := time.Now()
	var expired []*entry
	t.mu.Lock()
	for fd, e := range t.byFD {
		if now.Sub(e.start) > maxAge {
			expired = append(expired, e)
			delete(t.byFD, fd)
		}
	}
	t.mu.Unlock()
	return expired
}

// drainAll removes and returns every parked entry, used when the
// scheduler shuts down with tasks still parked.
func (t *Table) drainAll() []*entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*entry, 0, len(t.byFD))
	for fd, e := range t.byFD {
		out = append(out, e)
		delete(t.byFD, fd)
	}
	return out
}

// Coordinator implements vthread.Awaiter on top of a Table and a
// Reactor, and provides one step of each of the two background loops
// that keep them honest (the loops themselves are run by the
// scheduler): PollOnce translates reactor completions into
// resumptions, and SweepOnce evicts entries that have waited too long.
type Coordinator struct {
	table    *Table
	reactor  *reactor.Reactor
	resumer  Resumer
	expiry   time.Duration
	sweepInt time.Duration
	expired  atomic.Uint64
}

// NewCoordinator constructs a Coordinator. expiry is how long a task
// may remain parked before the sweep destroys it; sweepInterval is how
// often the expiry sweep runs.
func NewCoordinator(r *reactor.Reactor, resumer Resumer, expiry, sweepInterval time.Duration) *Coordinator {
	return &Coordinator{
		table:    NewTable(),
		reactor:  r,
		resumer:  resumer,
		expiry:   expiry,
		sweepInt: sweepInterval,
	}
}

// Len reports how many tasks are currently parked.
func (c *Coordinator) Len() int { return c.table.Len() }

// AwaitIO implements vthread.Awaiter. It is called from the task's own
// goroutine (via Control.AwaitIO), never from the reactor-poll or sweep
// loops, so it is safe for it to block until the task is resumed.
//
// The five-step suspend protocol: (1) mark the task's state ParkedIO
// so a concurrent observer sees it, (2) insert into the parking table, (3)
// register with the reactor, (4) block the task's goroutine, (5) on
// wake, read back whatever the resumption path stashed.
func (c *Coordinator) AwaitIO(t *vthread.Task, fd int, interest poller.Interest) (int, error) {
	t.SetState(vthread.StateParkedIO)
	if err := c.table.insert(t, fd, interest); err != nil {
		log.Printf("park: %v (fd=%d, task=%d)", err, fd, t.ID())
		return -1, err
	}
	if err := c.reactor.Add(fd, interest, uintptr(t.ID())); err != nil {
		c.table.remove(fd)
		log.Printf("park: reactor add failed: %v (fd=%d)", err, fd)
		return -1, err
	}

	result := t.SuspendAndWaitForIO()

	// A timed-out or cancelled task is destroyed by SweepOnce/CancelAll
	// before it is ever resumed (spec: "the task is then destroyed
	// without resumption"), so suspend() ends this goroutine via
	// runtime.Goexit() and execution never reaches here for either
	// case; only a genuine backend I/O error can produce a negative
	// result at this point.
	if result < 0 {
		return result, errors.New("park: io error")
	}
	return result, nil
}

// PollOnce drains one batch of reactor completions and resumes the
// corresponding tasks. Meant to be called in a loop by a single
// dedicated goroutine owned by the scheduler.
func (c *Coordinator) PollOnce(timeoutMs int) {
	completions := c.reactor.Wait(timeoutMs)
	for _, comp := range completions {
		entry, ok := c.table.remove(comp.FD)
		if !ok {
			// Late completion for an fd that was already removed
			// (task cancelled or timed out first); drop it.
			continue
		}
		if err := c.reactor.Remove(comp.FD); err != nil {
			log.Printf("park: reactor remove failed: %v (fd=%d)", err, comp.FD)
		}
		result := int(comp.Result)
		if result == 0 {
			result = 1 // plain readiness, no error observed
		}
		entry.task.SetIOResult(result)
		entry.task.SetState(vthread.StateReady)
		c.resumer.Resume(entry.task)
	}
}

// SweepOnce evicts every entry parked longer than the coordinator's
// expiry and destroys it directly, without ever resuming it, matching
// original_source/src/vthread_scheduler.cpp's stop() (handle.destroy()
// on every outstanding entry, no resumption).
func (c *Coordinator) SweepOnce() {
	for _, e := range c.table.sweepExpired(c.expiry) {
		if err := c.reactor.Remove(e.fd); err != nil {
			log.Printf("park: reactor remove failed during sweep: %v (fd=%d)", err, e.fd)
		}
		c.expired.Add(1)
		e.task.Destroy()
	}
}

// ExpiredCount reports how many parked tasks have been destroyed by the
// timeout sweep since the coordinator was created.
func (c *Coordinator) ExpiredCount() uint64 { return c.expired.Load() }

// CancelAll destroys every currently parked task directly, without
// resuming it, used when the scheduler stops.
func (c *Coordinator) CancelAll() {
	for _, e := range c.table.drainAll() {
		if err := c.reactor.Remove(e.fd); err != nil {
			log.Printf("park: reactor remove failed during cancel: %v (fd=%d)", err, e.fd)
		}
		e.task.Destroy()
	}
}

// SweepInterval reports the configured sweep cadence.
func (c *Coordinator) SweepInterval() time.Duration { return c.sweepInt }
