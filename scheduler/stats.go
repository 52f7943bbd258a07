package scheduler

import "sync/atomic"

// counters holds the scheduler's monotonically increasing statistics.
// Every field is read with a plain atomic load, so a caller collecting
// Stats may observe a slightly stale snapshot when the scheduler is
// active; individual counters themselves never decrease.
type counters struct {
	totalScheduled atomic.Uint64
	totalIOParked  atomic.Uint64
	totalResumed   atomic.Uint64
	steals         atomic.Uint64
	contextSwitches atomic.Uint64
	perWorker      []atomic.Uint64
}

func newCounters(numWorkers int) *counters {
	return &counters{perWorker: make([]atomic.Uint64, numWorkers)}
}

// Stats is a point-in-time snapshot of scheduler activity.
type Stats struct {
	TotalScheduled    uint64
	TotalIOParked     uint64
	TotalResumed      uint64
	Steals            uint64
	ContextSwitches   uint64
	PerWorkerExecuted []uint64
	ParkedNow         int
	// ExpiredIO counts parked tasks destroyed by the timeout sweep.
	ExpiredIO uint64
	// CPUTier names the microarchitecture feature tier detected at
	// startup: "avx2/asimd" or "baseline". It is informational only;
	// arena.DefaultAlignment runs the same feature test on its own.
	CPUTier string
}

func (c *counters) snapshot(parkedNow int, expiredIO uint64, cpuTier string) Stats {
	per := make([]uint64, len(c.perWorker))
	for i := range c.perWorker {
		per[i] = c.perWorker[i].Load()
	}
	return Stats{
		TotalScheduled:    c.totalScheduled.Load(),
		TotalIOParked:     c.totalIOParked.Load(),
		TotalResumed:      c.totalResumed.Load(),
		Steals:            c.steals.Load(),
		ContextSwitches:   c.contextSwitches.Load(),
		PerWorkerExecuted: per,
		ParkedNow:         parkedNow,
		ExpiredIO:         expiredIO,
		CPUTier:           cpuTier,
	}
}
