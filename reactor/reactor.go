// Package reactor gives the scheduler a uniform view over whichever
// poller backend the platform provides, and is the sole owner of the
// blocking Wait call: exactly one goroutine ever drives it.
package reactor

import (
	"log"

	"github.com/searchktools/vthread-runtime/poller"
)

// Reactor multiplexes I/O readiness for every parked task in the
// runtime. There is exactly one Reactor per scheduler, shared by all
// workers.
type Reactor struct {
	backend poller.Poller
}

// New constructs a Reactor backed by the platform's native readiness
// facility.
func New() (*Reactor, error) {
	backend, err := poller.New()
	if err != nil {
		return nil, err
	}
	return &Reactor{backend: backend}, nil
}

// Add registers fd for the given interest, carrying datum back on every
// completion for that registration.
func (r *Reactor) Add(fd int, interest poller.Interest, datum uintptr) error {
	return r.backend.Add(fd, interest, datum)
}

// Modify changes the interest mask of an existing registration.
func (r *Reactor) Modify(fd int, interest poller.Interest, datum uintptr) error {
	return r.backend.Modify(fd, interest, datum)
}

// Remove drops a registration. Removing an fd that isn't registered is
// not an error.
func (r *Reactor) Remove(fd int) error {
	return r.backend.Remove(fd)
}

// Wait blocks up to timeoutMs for at least one completion. Backend
// failures are logged and reported as an empty set rather than
// propagated, matching the reactor's role as a shared background
// facility that must never bring a worker down.
func (r *Reactor) Wait(timeoutMs int) []poller.Completion {
	completions, err := r.backend.Wait(timeoutMs)
	if err != nil {
		log.Printf("reactor: wait failed: %v", err)
		return nil
	}
	return completions
}

// Close releases the backend's underlying resources.
func (r *Reactor) Close() error {
	return r.backend.Close()
}
