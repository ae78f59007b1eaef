package reactor

import (
	"errors"
	"syscall"
)

var (
	ErrNotInitialized      = errors.New("reactor: not initialized")
	ErrClosed              = errors.New("reactor: closed")
	ErrCapacityExceeded    = errors.New("reactor: capacity exceeded")
	ErrNotFound            = errors.New("reactor: handle not registered")
	ErrHandleOutOfRange    = errors.New("reactor: handle out of range")
	ErrInvalidInterest     = errors.New("reactor: invalid interest")
	ErrNilCallback         = errors.New("reactor: nil callback")
	ErrReentrantDispatch   = errors.New("reactor: dispatch already in progress")
	ErrUnsupportedPlatform = errors.New("reactor: backend not supported on this platform")

	// ErrWaitFailed matches (via errors.Is) any PlatformError raised by the
	// readiness wait itself.
	ErrWaitFailed = errors.New("reactor: wait failed")
)

// PlatformError is a host call failure unrelated to interruption. The
// underlying errno is preserved for diagnostics.
type PlatformError struct {
	Op   string
	Err  error
	wait bool
}

func newPlatformError(op string, err error) *PlatformError {
	return &PlatformError{Op: op, Err: err}
}

func newWaitError(op string, err error) *PlatformError {
	return &PlatformError{Op: op, Err: err, wait: true}
}

func (e *PlatformError) Error() string {
	return "reactor: " + e.Op + ": " + e.Err.Error()
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func (e *PlatformError) Is(target error) bool {
	return e.wait && target == ErrWaitFailed
}

// Code returns the platform error number, or -1 if the cause carries none.
func (e *PlatformError) Code() int {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return int(errno)
	}
	return -1
}
