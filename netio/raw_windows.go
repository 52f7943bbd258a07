//go:build windows

package netio

import "golang.org/x/sys/windows"

func rawRead(fd int, p []byte) (int, error) {
	n, err := windows.Read(windows.Handle(fd), p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func rawWrite(fd int, p []byte) (int, error) {
	n, err := windows.Write(windows.Handle(fd), p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func rawClose(fd int) error {
	return windows.CloseHandle(windows.Handle(fd))
}

func isWouldBlock(err error) bool {
	return err == windows.WSAEWOULDBLOCK
}
