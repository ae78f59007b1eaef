//go:build linux
// +build linux

package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var backends = []BackendKind{IndexSet, SlotTable}

func newTestReactor(t *testing.T, opts ...Option) *Reactor {
	t.Helper()
	r := New(opts...)
	st, err := r.Init()
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// pipe returns a non-blocking pipe; the read end becomes read-ready once
// signal writes to the other end.
func pipe(t *testing.T) (Handle, int) {
	t.Helper()
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	})
	return Handle(p[0]), p[1]
}

// pipeAt is pipe with the read end duplicated onto a chosen descriptor.
func pipeAt(t *testing.T, fd int) (Handle, int) {
	t.Helper()
	r, w := pipe(t)
	require.NoError(t, unix.Dup3(int(r), fd, unix.O_CLOEXEC))
	t.Cleanup(func() { _ = unix.Close(fd) })
	return Handle(fd), w
}

func signal(t *testing.T, w int) {
	t.Helper()
	_, err := unix.Write(w, []byte{'x'})
	require.NoError(t, err)
}
