//go:build linux
// +build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

var wakeBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

func newGate() (*Gate, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, newPlatformError("eventfd", err)
	}
	return &Gate{fd: fd}, nil
}

// kickFd ignores EAGAIN: a saturated counter is already readable.
func kickFd(fd int) {
	_, _ = unix.Write(fd, wakeBytes)
}

func drainFd(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

func closeFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return newPlatformError("close", err)
	}
	return nil
}
