//go:build windows

package poller

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// IOCP has no native level-triggered readiness notion the way epoll and
// kqueue do; it only completes overlapped operations. iocpPoller gets a
// readiness signal out of it by posting a zero-length overlapped
// WSARecv (for read interest) or WSASend (for write interest) per
// registration: the completion of that zero-byte operation is IOCP's
// way of saying "this direction is ready", without actually consuming
// any bytes.
type opKind uint8

const (
	opRead opKind = iota
	opWrite
)

type ioOp struct {
	ov   windows.Overlapped
	fd   int
	kind opKind
}

type iocpPoller struct {
	port windows.Handle
	mu   sync.Mutex
	data map[int]uintptr
}

func newPlatformPoller() (Poller, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpPoller{port: port, data: make(map[int]uintptr, 1024)}, nil
}

func (p *iocpPoller) associate(fd int) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.port, uintptr(fd), 0)
	if err != nil && err != windows.ERROR_INVALID_PARAMETER {
		return err
	}
	return nil
}

func (p *iocpPoller) postProbe(fd int, interest Interest) error {
	var empty windows.WSABuf
	if interest&Readable != 0 {
		op := &ioOp{fd: fd, kind: opRead}
		var flags, n uint32
		err := windows.WSARecv(windows.Handle(fd), &empty, 1, &n, &flags, &op.ov, nil)
		if err != nil && err != windows.WSA_IO_PENDING {
			return err
		}
	}
	if interest&Writable != 0 {
		op := &ioOp{fd: fd, kind: opWrite}
		var n uint32
		err := windows.WSASend(windows.Handle(fd), &empty, 1, &n, 0, &op.ov, nil)
		if err != nil && err != windows.WSA_IO_PENDING {
			return err
		}
	}
	return nil
}

func (p *iocpPoller) Add(fd int, interest Interest, data uintptr) error {
	p.mu.Lock()
	p.data[fd] = data
	p.mu.Unlock()
	if err := p.associate(fd); err != nil {
		return err
	}
	return p.postProbe(fd, interest)
}

func (p *iocpPoller) Modify(fd int, interest Interest, data uintptr) error {
	p.mu.Lock()
	p.data[fd] = data
	p.mu.Unlock()
	return p.postProbe(fd, interest)
}

func (p *iocpPoller) Remove(fd int) error {
	p.mu.Lock()
	delete(p.data, fd)
	p.mu.Unlock()
	return nil
}

func (p *iocpPoller) Wait(timeoutMs int) ([]Completion, error) {
	var n uint32
	var key uintptr
	var ov *windows.Overlapped
	timeout := uint32(timeoutMs)
	if timeoutMs < 0 {
		timeout = windows.INFINITE
	}
	err := windows.GetQueuedCompletionStatus(p.port, &n, &key, &ov, timeout)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil, nil
		}
		return nil, err
	}
	if ov == nil {
		return nil, nil // wakeup posted by PostQueuedCompletionStatus
	}
	op := (*ioOp)(unsafe.Pointer(ov))
	p.mu.Lock()
	datum := p.data[op.fd]
	p.mu.Unlock()
	mask := Readable
	if op.kind == opWrite {
		mask = Writable
	}
	return []Completion{{FD: op.fd, Mask: mask, Data: datum}}, nil
}

func (p *iocpPoller) Close() error {
	return windows.CloseHandle(p.port)
}

// SetNonblock is a no-op on Windows: sockets driven through IOCP are
// asynchronous by construction once associated with a completion port.
func SetNonblock(fd int) error {
	return nil
}
