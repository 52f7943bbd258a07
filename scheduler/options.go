package scheduler

import (
	"runtime"
	"time"
)

type options struct {
	numWorkers      int
	arenaSize       int
	ioExpiry        time.Duration
	sweepInterval   int // milliseconds, also the reactor Wait timeout
	balanceInterval time.Duration
	preemptAfter    time.Duration
	idleWait        time.Duration
	loadImbalance   int64
	maxStealAttempts int
}

func defaultOptions() options {
	return options{
		numWorkers:       runtime.GOMAXPROCS(0),
		arenaSize:        0, // arena.DefaultSize
		ioExpiry:         30 * time.Second,
		sweepInterval:    100,
		balanceInterval:  100 * time.Millisecond,
		preemptAfter:     10 * time.Millisecond,
		idleWait:         10 * time.Millisecond,
		loadImbalance:    2,
		maxStealAttempts: 4,
	}
}

// Option configures a Scheduler at construction time.
type Option func(*options)

// WithWorkers sets the number of worker goroutines. Non-positive values
// fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.numWorkers = n
		}
	}
}

// WithArenaSize sets the initial backing size of each worker's bump
// arena.
func WithArenaSize(bytes int) Option {
	return func(o *options) { o.arenaSize = bytes }
}

// WithIOExpiry sets how long a task may remain parked for I/O before
// the timeout sweep destroys it.
func WithIOExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ioExpiry = d
		}
	}
}

// WithSweepInterval sets the cadence of both the parking-table timeout
// sweep and the reactor's Wait timeout.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if ms := int(d.Milliseconds()); ms > 0 {
			o.sweepInterval = ms
		}
	}
}

// WithBalanceInterval sets how often each worker compares its own load
// with the least-loaded worker's and sheds a task on imbalance.
func WithBalanceInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.balanceInterval = d
		}
	}
}

// WithPreemptionThreshold sets how long a single Resume call may run
// before the worker treats its next voluntary suspension as preemption
// rather than a plain yield.
func WithPreemptionThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.preemptAfter = d
		}
	}
}
