// Package netio adapts a plain non-blocking file descriptor to the
// virtual-thread runtime: reads and writes retry through
// vthread.Control.AwaitIO instead of blocking a whole OS thread, which
// is the only sanctioned use of that primitive in this codebase.
package netio

import (
	"github.com/searchktools/vthread-runtime/poller"
	"github.com/searchktools/vthread-runtime/vthread"
)

// Socket wraps a non-blocking file descriptor for use from inside a
// virtual thread's body. The caller is responsible for putting fd into
// non-blocking mode (poller.SetNonblock) before constructing one.
type Socket struct {
	fd  int
	ctl *vthread.Control
}

// New wraps fd for use by the virtual thread owning ctl.
func New(ctl *vthread.Control, fd int) *Socket {
	return &Socket{fd: fd, ctl: ctl}
}

// FD returns the underlying file descriptor.
func (s *Socket) FD() int { return s.fd }

// Read fills p, awaiting readability whenever the underlying syscall
// would block, and returns the number of bytes copied so far when the
// peer half-closes (a short read rather than an error). A negative
// return indicates a hard I/O error.
func (s *Socket) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := rawRead(s.fd, p[total:])
		switch {
		case err == nil && n > 0:
			total += n
		case err == nil && n == 0:
			// EOF: hand back whatever was read so far.
			return total, nil
		case isWouldBlock(err):
			if _, awaitErr := s.ctl.AwaitIO(s.fd, poller.Readable); awaitErr != nil {
				return -1, awaitErr
			}
		default:
			return -1, err
		}
	}
	return total, nil
}

// ReadSome performs a single read attempt, awaiting readability at most
// once if the socket has nothing available yet, and returns whatever
// bytes (possibly zero on EOF) came back. Unlike Read it never loops to
// fill the whole buffer, which is what most request-parsing loops that
// don't know their target length in advance actually want.
func (s *Socket) ReadSome(p []byte) (int, error) {
	for {
		n, err := rawRead(s.fd, p)
		switch {
		case err == nil:
			return n, nil
		case isWouldBlock(err):
			if _, awaitErr := s.ctl.AwaitIO(s.fd, poller.Readable); awaitErr != nil {
				return -1, awaitErr
			}
		default:
			return -1, err
		}
	}
}

// Write drains p completely, awaiting writability whenever the
// underlying syscall would block. A negative return indicates a hard
// I/O error partway through.
func (s *Socket) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := rawWrite(s.fd, p[total:])
		switch {
		case err == nil:
			total += n
		case isWouldBlock(err):
			if _, awaitErr := s.ctl.AwaitIO(s.fd, poller.Writable); awaitErr != nil {
				return -1, awaitErr
			}
		default:
			return -1, err
		}
	}
	return total, nil
}

// Close releases the underlying file descriptor. The caller must not
// use the Socket afterward.
func (s *Socket) Close() error {
	return rawClose(s.fd)
}
