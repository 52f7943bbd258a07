//go:build linux

package scheduler

import (
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU binds the calling OS thread to a single CPU. It must be
// called after runtime.LockOSThread, from the goroutine that is to stay
// bound, matching original_source/src/vthread_scheduler.cpp's
// bind_core (pthread_setaffinity_np/CPU_SET per worker). Binding is
// best-effort: a failure (e.g. running under a container/cgroup that
// restricts CPUSet manipulation) is logged and otherwise ignored rather
// than treated as fatal, since a worker that fails to pin still makes
// correct progress, just without the cache-locality benefit.
func pinToCPU(id int) {
	n := runtime.NumCPU()
	if n == 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(id % n)
	if err := unix.SchedSetaffinity(unix.Gettid(), &set); err != nil {
		log.Printf("scheduler: worker %d: SchedSetaffinity failed: %v", id, err)
	}
}
