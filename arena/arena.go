// Package arena implements the worker-local bump allocator each
// scheduler worker uses for short-lived task scratch space. An Arena
// has exactly one owner, is never touched from another goroutine, and
// is reset only when its owning worker tears down.
package arena

import "golang.org/x/sys/cpu"

// DefaultSize is the initial backing size of a freshly constructed
// Arena, chosen to comfortably cover a worker's typical in-flight
// scratch usage without growing.
const DefaultSize = 1 << 20 // 1 MiB

// DefaultAlignment reports the bump-pointer alignment a worker should
// request when it has no size-specific reason to pick its own: wider
// SIMD register files reward wider natural alignment for scratch
// buffers those instructions end up touching (e.g. a socket read
// buffer later fed through a vectorized parser). Machines without
// those extensions get 16-byte alignment.
func DefaultAlignment() int {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return 32
	}
	return 16
}

// Arena is a monotonic bump allocator. It carries no locks: callers
// must guarantee single-threaded access, exactly like the per-worker
// buffer pools it replaces.
type Arena struct {
	buf     []byte
	off     int
	defAlgn int
}

// New constructs an Arena with the given initial backing size. A
// non-positive size falls back to DefaultSize. The arena's default
// alignment (used whenever Alloc is called with align <= 0) is chosen
// once via DefaultAlignment.
func New(size int) *Arena {
	if size <= 0 {
		size = DefaultSize
	}
	return &Arena{buf: make([]byte, size), defAlgn: DefaultAlignment()}
}

// Alloc returns a size-byte slice aligned to align bytes (a power of
// two; 0 defaults to the arena's DefaultAlignment). The backing store
// grows, doubling as needed, when the bump pointer would overrun it —
// allocations never fail. Returned slices alias the arena's backing
// array and are only valid until the next Reset.
func (a *Arena) Alloc(size, align int) []byte {
	if align <= 0 {
		align = a.defAlgn
	}
	aligned := (a.off + align - 1) &^ (align - 1)
	if need := aligned + size; need > len(a.buf) {
		grown := len(a.buf) * 2
		if grown < need {
			grown = need
		}
		newBuf := make([]byte, grown)
		copy(newBuf, a.buf[:a.off])
		a.buf = newBuf
	}
	region := a.buf[aligned : aligned+size]
	a.off = aligned + size
	return region
}

// Reset rewinds the bump pointer, invalidating every slice previously
// returned by Alloc. Callers must only call this at worker teardown,
// once every task holding an arena-backed slice has completed.
func (a *Arena) Reset() {
	a.off = 0
}

// Cap reports the arena's current backing capacity, mostly useful for
// stats and tests.
func (a *Arena) Cap() int {
	return len(a.buf)
}

// Used reports how many bytes of the backing store are currently
// allocated.
func (a *Arena) Used() int {
	return a.off
}
