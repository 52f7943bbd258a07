/*
Package vthreadruntime is a user-space concurrency runtime for network
servers: a work-stealing scheduler of cooperatively scheduled
lightweight tasks ("virtual threads") whose suspension and resumption
are driven by asynchronous readiness events from the host operating
system's I/O multiplexer.

Quick Start

Basic usage example:

package main

import (
    "context"

    "github.com/searchktools/vthread-runtime/scheduler"
    "github.com/searchktools/vthread-runtime/vthread"
)

func main() {
    s, err := scheduler.New(scheduler.WithWorkers(4))
    if err != nil {
        panic(err)
    }
    if err := s.Start(); err != nil {
        panic(err)
    }
    defer s.Stop(context.Background())

    s.Spawn(func(ctl *vthread.Control) {
        // read/write through netio.Socket, calling ctl.AwaitIO or
        // ctl.Yield at every suspension point.
    })
}

Spawn returns ErrStopped until Start has been called. app.App wraps
the same scheduler with flag-based configuration and signal-driven
shutdown; App.Run calls Start itself, so spawning through
App.Scheduler succeeds only once Run is under way.

Modules

The runtime is organized into several packages:

  - app: process lifecycle management (signal handling, graceful shutdown)
  - config: flag-based configuration loading
  - vthread: the virtual thread abstraction (Task, Control, SuspendReason)
  - runqueue: the per-worker ready queue
  - arena: the per-worker bump allocator
  - poller: platform I/O readiness backends (epoll, kqueue, IOCP)
  - reactor: the uniform wrapper around a poller backend
  - park: the parking table and I/O-await primitive
  - scheduler: the worker pool, placement, stealing, and load balancing
  - netio: the non-blocking socket adapter built on vthread.Control.AwaitIO

Non-goals

This runtime does not implement an HTTP parser, a connection-accept
loop, TLS termination, or NUMA-aware placement. It provides exactly the
primitives a higher layer needs to build those things on top of
cooperatively scheduled virtual threads.
*/
package vthreadruntime
