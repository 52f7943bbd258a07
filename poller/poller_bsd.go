//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the event-queue backend used on Darwin and the BSDs.
// Read and write interest are tracked as independent filters, since
// kqueue has no combined readable|writable event the way epoll does.
type kqueuePoller struct {
	fd     int
	mu     sync.Mutex
	data   map[int]uintptr
	events []unix.Kevent_t
}

func newPlatformPoller() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		fd:     fd,
		data:   make(map[int]uintptr, 1024),
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) changeInterest(fd int, interest Interest, add bool) error {
	var changes []unix.Kevent_t
	readFlags := unix.EV_DELETE
	writeFlags := unix.EV_DELETE
	if add {
		if interest&Readable != 0 {
			readFlags = unix.EV_ADD | unix.EV_ENABLE
		}
		if interest&Writable != 0 {
			writeFlags = unix.EV_ADD | unix.EV_ENABLE
		}
	}
	changes = append(changes, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  uint16(readFlags),
	})
	changes = append(changes, unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_WRITE,
		Flags:  uint16(writeFlags),
	})
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, interest Interest, data uintptr) error {
	p.mu.Lock()
	p.data[fd] = data
	p.mu.Unlock()
	if err := p.changeInterest(fd, interest, true); err != nil {
		p.mu.Lock()
		delete(p.data, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *kqueuePoller) Modify(fd int, interest Interest, data uintptr) error {
	p.mu.Lock()
	p.data[fd] = data
	p.mu.Unlock()
	return p.changeInterest(fd, interest, true)
}

func (p *kqueuePoller) Remove(fd int) error {
	p.mu.Lock()
	delete(p.data, fd)
	p.mu.Unlock()
	return p.changeInterest(fd, 0, false)
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Completion, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}
	n, err := unix.Kevent(p.fd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]Completion, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		c := Completion{FD: fd, Data: p.data[fd]}
		if ev.Flags&unix.EV_ERROR != 0 || ev.Flags&unix.EV_EOF != 0 {
			c.Result = -1
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			c.Mask |= Readable
		case unix.EVFILT_WRITE:
			c.Mask |= Writable
		}
		out = append(out, c)
	}
	p.mu.Unlock()
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.fd)
}

// SetNonblock puts fd into non-blocking mode, the precondition every
// caller of the reactor must satisfy before registering a socket.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
