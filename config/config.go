// Package config loads runtime tuning knobs from command-line flags,
// the same way the rest of this codebase's ambient stack always has:
// no configuration framework, just the standard library.
package config

import (
	"flag"
	"time"
)

// Config holds the tunables New wires into scheduler.Option values.
type Config struct {
	Workers            int
	IOExpirySeconds    int
	SweepIntervalMS    int
	BalanceIntervalMS  int
	PreemptThresholdMS int
	Env                string
}

// New parses flags into a Config. A Workers value of 0 means "use
// GOMAXPROCS", matching scheduler.WithWorkers's own fallback.
func New() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Workers, "workers", 0, "number of scheduler worker goroutines (0 = GOMAXPROCS)")
	flag.IntVar(&cfg.IOExpirySeconds, "io-expiry", 30, "seconds a parked task may wait before the timeout sweep destroys it")
	flag.IntVar(&cfg.SweepIntervalMS, "sweep-interval-ms", 100, "milliseconds between parking-table timeout sweeps")
	flag.IntVar(&cfg.BalanceIntervalMS, "balance-interval-ms", 100, "milliseconds between per-worker load-balance checks")
	flag.IntVar(&cfg.PreemptThresholdMS, "preempt-threshold-ms", 10, "milliseconds a single resume may run before its next yield counts as a preemption")
	flag.StringVar(&cfg.Env, "env", "development", "deployment environment, logged at startup only")

	flag.Parse()
	return cfg
}

// IOExpiry returns the parked-task expiry as a time.Duration.
func (c *Config) IOExpiry() time.Duration {
	return time.Duration(c.IOExpirySeconds) * time.Second
}

// PreemptThreshold returns the preemption accounting threshold as a
// time.Duration.
func (c *Config) PreemptThreshold() time.Duration {
	return time.Duration(c.PreemptThresholdMS) * time.Millisecond
}

// BalanceInterval returns the load-balance check cadence as a
// time.Duration.
func (c *Config) BalanceInterval() time.Duration {
	return time.Duration(c.BalanceIntervalMS) * time.Millisecond
}

// SweepInterval returns the parking-table sweep cadence as a
// time.Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}
