package scheduler

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/searchktools/vthread-runtime/arena"
	"github.com/searchktools/vthread-runtime/runqueue"
	"github.com/searchktools/vthread-runtime/vthread"
)

// worker owns exactly one run queue and one arena, and is the only
// goroutine that ever pops from its own queue on the "no work left,
// try to steal" path — other workers only reach into it via Pop when
// stealing, which the queue itself makes safe.
type worker struct {
	id     int
	sched  *Scheduler
	queue  *runqueue.Queue[*vthread.Task]
	arena  *arena.Arena
	load   atomic.Int64
	wakeCh chan struct{}

	lastBalance time.Time
}

func newWorker(id int, sched *Scheduler) *worker {
	return &worker{
		id:     id,
		sched:  sched,
		queue:  runqueue.New[*vthread.Task](),
		arena:  arena.New(sched.opts.arenaSize),
		wakeCh: make(chan struct{}, 1),
	}
}

func (w *worker) wake() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// run is the worker's main loop: own queue, then a bounded random
// steal, then park until woken or the idle timer fires. The idle timer
// exists so periodic duties (load balancing) still happen even when no
// work ever arrives. Once the scheduler is draining (Stop was called),
// a worker keeps servicing its own queue and stealing but exits as soon
// as both come up empty, rather than waiting to be told to stop.
//
// A worker locks itself to its own OS thread and pins that thread to
// CPU id (mod NumCPU) for the rest of its life, so the run queue and
// arena it exclusively owns stay resident in one core's cache.
func (w *worker) run() {
	runtime.LockOSThread()
	pinToCPU(w.id)
	defer w.arena.Reset()
	w.lastBalance = time.Now()

	timer := time.NewTimer(w.sched.opts.idleWait)
	defer timer.Stop()

	for {
		if !w.sched.stopping.Load() && time.Since(w.lastBalance) >= w.sched.opts.balanceInterval {
			w.maybeShed()
			w.lastBalance = time.Now()
		}

		if t, ok := w.queue.Pop(); ok {
			w.execute(t)
			continue
		}
		if t, ok := w.trySteal(); ok {
			w.execute(t)
			continue
		}
		if w.sched.stopping.Load() {
			return
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.sched.opts.idleWait)
		select {
		case <-w.wakeCh:
		case <-timer.C:
		}
	}
}

// trySteal picks up to maxStealAttempts distinct random victims
// (excluding itself) and attempts one Pop from each, stopping at the
// first success.
func (w *worker) trySteal() (*vthread.Task, bool) {
	n := len(w.sched.workers)
	if n <= 1 {
		return nil, false
	}
	attempts := w.sched.opts.maxStealAttempts
	if attempts > n-1 {
		attempts = n - 1
	}
	tried := 0
	for _, victimIdx := range rand.Perm(n) {
		if victimIdx == w.id {
			continue
		}
		if tried >= attempts {
			break
		}
		tried++
		victim := w.sched.workers[victimIdx]
		if t, ok := victim.queue.Pop(); ok {
			victim.load.Add(-1)
			w.load.Add(1)
			w.sched.counters.steals.Add(1)
			return t, true
		}
	}
	return nil, false
}

// maybeShed migrates one task away from this worker onto the
// least-loaded worker if the two have drifted apart by more than the
// configured imbalance.
func (w *worker) maybeShed() {
	minIdx := w.sched.lowestLoadWorker()
	if minIdx == w.id {
		return
	}
	myLoad := w.load.Load()
	minLoad := w.sched.workers[minIdx].load.Load()
	if myLoad-minLoad <= w.sched.opts.loadImbalance {
		return
	}
	t, ok := w.queue.Pop()
	if !ok {
		return
	}
	w.load.Add(-1)
	target := w.sched.workers[minIdx]
	target.load.Add(1)
	t.SetState(vthread.StateReady)
	target.queue.Push(t)
	target.wake()
}

// execute runs one task to its next suspension point and decides where
// it goes next.
func (w *worker) execute(t *vthread.Task) {
	now := time.Now()
	t.SetLastResumed(now)
	reason := t.Resume()
	elapsed := time.Since(now)

	w.sched.counters.contextSwitches.Add(1)
	w.sched.counters.perWorker[w.id].Add(1)

	switch reason {
	case vthread.Completed:
		w.load.Add(-1)
		t.Destroy()
	case vthread.ParkForIO:
		// Ownership has moved to the parking table; AwaitIO already
		// registered it with the reactor before suspending.
		w.load.Add(-1)
	case vthread.Yield:
		if elapsed > w.sched.opts.preemptAfter {
			// This resume ran long enough that the scheduler treats
			// the voluntary yield as a preemption for placement
			// purposes: keep it on this worker rather than paying to
			// move it, cooperative rather than forceful.
			w.queue.Push(t)
			return
		}
		w.sched.rescheduleYield(w, t)
	case vthread.Preempted, vthread.None:
		w.queue.Push(t)
	}
}
