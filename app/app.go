// Package app wires a Config into a running Scheduler and handles
// graceful shutdown on SIGINT/SIGTERM, the same shape as the ambient
// process lifecycle every binary built on this codebase uses.
package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchktools/vthread-runtime/config"
	"github.com/searchktools/vthread-runtime/scheduler"
)

// App owns a Scheduler for the lifetime of the process.
type App struct {
	cfg *config.Config
	sched *scheduler.Scheduler
}

// New constructs the scheduler from cfg but does not start it.
func New(cfg *config.Config) (*App, error) {
	sched, err := scheduler.New(
		scheduler.WithWorkers(cfg.Workers),
		scheduler.WithIOExpiry(cfg.IOExpiry()),
		scheduler.WithSweepInterval(cfg.SweepInterval()),
		scheduler.WithBalanceInterval(cfg.BalanceInterval()),
		scheduler.WithPreemptionThreshold(cfg.PreemptThreshold()),
	)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, sched: sched}, nil
}

// Scheduler returns the underlying scheduler, for callers that want to
// spawn virtual threads directly (a connection-accept loop built with
// netio, for instance) rather than going through App.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Run starts the scheduler and blocks until SIGINT/SIGTERM, then drains
// it gracefully.
func (a *App) Run() error {
	if err := a.sched.Start(); err != nil {
		return err
	}
	log.Printf("🚀 vthread scheduler started: %d workers [%s]", a.sched.NumWorkers(), a.cfg.Env)
	log.Printf("⚡ cooperative scheduling over async I/O readiness, no OS thread per connection")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("signal received: %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.sched.Stop(ctx); err != nil {
		log.Printf("scheduler stop: %v", err)
		return err
	}
	log.Printf("📊 final stats: %+v", a.sched.Stats())
	return nil
}
