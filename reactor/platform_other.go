//go:build !linux
// +build !linux

package reactor

func newGate() (*Gate, error) {
	return nil, ErrUnsupportedPlatform
}

func newBackend(options, *Gate) (backend, error) {
	return nil, ErrUnsupportedPlatform
}

func kickFd(int) {}

func drainFd(int) {}

func closeFd(int) error { return nil }
