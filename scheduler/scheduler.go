// Package scheduler is the runtime's core: it owns the worker pool,
// the reactor and parking table, and every policy decision (placement,
// stealing, load balancing, preemption accounting) that turns a pile of
// virtual threads into forward progress.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/vthread-runtime/park"
	"github.com/searchktools/vthread-runtime/poller"
	"github.com/searchktools/vthread-runtime/reactor"
	"github.com/searchktools/vthread-runtime/vthread"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

// ErrStopped is returned by Spawn calls made after Stop, or before
// Start.
var ErrStopped = errors.New("scheduler: not running")

// Scheduler runs a pool of worker goroutines, each executing virtual
// threads cooperatively until they suspend for I/O or voluntarily
// yield. It satisfies vthread.Awaiter and park.Resumer so that tasks it
// creates can suspend and resume through it without those packages
// needing to know about each other.
type Scheduler struct {
	opts     options
	workers  []*worker
	reactor  *reactor.Reactor
	park     *park.Coordinator
	counters *counters

	running  atomic.Bool
	stopping atomic.Bool

	bgCancel context.CancelFunc
	grp      *errgroup.Group

	cpuTier string
}

// New constructs a Scheduler in the stopped state; call Start to spin
// up its worker pool.
func New(opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	r, err := reactor.New()
	if err != nil {
		return nil, err
	}

	tier := "baseline"
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		tier = "avx2/asimd"
	}

	s := &Scheduler{
		opts:     o,
		reactor:  r,
		counters: newCounters(o.numWorkers),
		cpuTier:  tier,
	}
	s.park = park.NewCoordinator(r, s, o.ioExpiry, time.Duration(o.sweepInterval)*time.Millisecond)
	s.workers = make([]*worker, o.numWorkers)
	for i := range s.workers {
		s.workers[i] = newWorker(i, s)
	}
	return s, nil
}

// Start launches the worker pool along with the reactor-poll and
// timeout-sweep background goroutines.
func (s *Scheduler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler: already running")
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel
	grp, _ := errgroup.WithContext(context.Background())
	s.grp = grp

	for _, w := range s.workers {
		w := w
		grp.Go(func() error {
			w.run()
			return nil
		})
	}
	grp.Go(func() error {
		s.reactorLoop(bgCtx)
		return nil
	})
	grp.Go(func() error {
		s.sweepLoop(bgCtx)
		return nil
	})
	return nil
}

func (s *Scheduler) reactorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.park.PollOnce(s.opts.sweepInterval)
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.opts.sweepInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.park.SweepOnce()
		}
	}
}

// Stop destroys any task still parked for I/O without resuming it,
// stops the background reactor-poll and sweep loops, then tells every
// worker to drain its own queue (accepting steals, but no more
// cross-worker migration) and exit once it finds nothing left to do. It
// waits, bounded by ctx, for that drain to finish. Stop is idempotent:
// calling it twice is a no-op the second time.
//
// Stop cannot forcibly interrupt a task that is actively running and
// never reaches a suspension point; that is a caller bug, not something
// the scheduler can repair, matching the "cooperative, not forceful"
// nature of the whole preemption model. If ctx expires first, Stop
// returns ctx.Err() while the drain keeps running in the background.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	// CancelAll destroys each parked entry directly and never touches a
	// worker queue, so it needs nothing from the loops below still being
	// alive except the reactor itself, which Stop doesn't close until
	// after s.grp.Wait() returns.
	s.park.CancelAll()
	s.bgCancel()
	s.stopping.Store(true)

	done := make(chan error, 1)
	go func() { done <- s.grp.Wait() }()

	select {
	case err := <-done:
		return errors.Join(err, s.reactor.Close())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn creates a new virtual thread and submits it for execution using
// lowest-load placement.
func (s *Scheduler) Spawn(fn func(ctl *vthread.Control)) (*vthread.Task, error) {
	if !s.running.Load() {
		return nil, ErrStopped
	}
	t := vthread.NewTask(s, fn)
	s.place(t)
	s.counters.totalScheduled.Add(1)
	return t, nil
}

// SpawnWithAffinity creates a new virtual thread pinned to the given
// worker index.
func (s *Scheduler) SpawnWithAffinity(workerIdx int, fn func(ctl *vthread.Control)) (*vthread.Task, error) {
	if !s.running.Load() {
		return nil, ErrStopped
	}
	t := vthread.NewTask(s, fn)
	t.SetAffinity(workerIdx)
	s.place(t)
	s.counters.totalScheduled.Add(1)
	return t, nil
}

// AwaitIO implements vthread.Awaiter, delegating to the parking table
// and reactor while updating the io-parked counter.
func (s *Scheduler) AwaitIO(t *vthread.Task, fd int, interest poller.Interest) (int, error) {
	s.counters.totalIOParked.Add(1)
	return s.park.AwaitIO(t, fd, interest)
}

// Resume implements park.Resumer: a task whose I/O completed is placed
// back on a worker using the same placement as a fresh submission (its
// affinity hint if set, otherwise the lowest-load worker). Timed-out
// tasks never come through here; the sweep destroys them.
func (s *Scheduler) Resume(t *vthread.Task) {
	s.place(t)
	s.counters.totalResumed.Add(1)
}

// place chooses a worker for t — its affinity hint if it has one and
// the index is valid, otherwise whichever worker currently has the
// least load — and pushes it there.
func (s *Scheduler) place(t *vthread.Task) {
	idx := t.Affinity()
	if idx < 0 || idx >= len(s.workers) {
		idx = s.lowestLoadWorker()
	}
	w := s.workers[idx]
	w.load.Add(1)
	t.SetState(vthread.StateReady)
	w.queue.Push(t)
	w.wake()
}

// rescheduleYield re-places a task that just yielded, using lowest-load
// placement across the whole pool (which may choose the same worker it
// came from). Once the scheduler is draining, it always stays on the
// worker it came from instead: a worker that has already finished
// draining and exited isn't coming back to service a migrated task.
func (s *Scheduler) rescheduleYield(from *worker, t *vthread.Task) {
	if s.stopping.Load() {
		from.queue.Push(t)
		return
	}
	idx := s.lowestLoadWorker()
	if idx == from.id {
		from.queue.Push(t)
		return
	}
	from.load.Add(-1)
	target := s.workers[idx]
	target.load.Add(1)
	t.SetState(vthread.StateReady)
	target.queue.Push(t)
	target.wake()
}

func (s *Scheduler) lowestLoadWorker() int {
	best := 0
	bestLoad := s.workers[0].load.Load()
	for i := 1; i < len(s.workers); i++ {
		if l := s.workers[i].load.Load(); l < bestLoad {
			bestLoad = l
			best = i
		}
	}
	return best
}

// NumWorkers reports the size of the worker pool.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// Stats returns a point-in-time snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	return s.counters.snapshot(s.park.Len(), s.park.ExpiredCount(), s.cpuTier)
}

var (
	globalOnce sync.Once
	global     *Scheduler
)

// Global returns a process-wide Scheduler, lazily constructed and
// started on first use with default options.
func Global() *Scheduler {
	globalOnce.Do(func() {
		s, err := New()
		if err != nil {
			panic(err)
		}
		if err := s.Start(); err != nil {
			panic(err)
		}
		global = s
	})
	return global
}
