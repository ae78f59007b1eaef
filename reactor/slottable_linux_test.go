//go:build linux
// +build linux

package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSlotTableCapacity(t *testing.T) {
	const capacity = 4
	r := newTestReactor(t, WithBackend(SlotTable), WithCapacity(capacity))

	var hs []Handle
	var ws []int
	for i := 0; i < capacity; i++ {
		h, w := pipe(t)
		require.NoError(t, r.Register(h, Read))
		hs = append(hs, h)
		ws = append(ws, w)
	}

	extra, _ := pipe(t)
	assert.ErrorIs(t, r.Register(extra, Read), ErrCapacityExceeded)
	assert.Equal(t, capacity, r.Len())
	_, ok := r.Watched(extra)
	assert.False(t, ok)

	// an existing handle may still be updated at capacity
	require.NoError(t, r.Register(hs[0], Read))

	for _, w := range ws {
		signal(t, w)
	}
	var rec recorder
	st, err := r.Dispatch(rec.callback, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	assert.ElementsMatch(t, hs, rec.handles())
	assert.Equal(t, 0, r.Len())
}

func TestSlotTableDefaultCapacity(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable), WithCapacity(0))
	sb := r.be.(*slotBackend)
	assert.Equal(t, DefaultCapacity, sb.capacity())
}

func TestSlotTableOnlySignaledSlotsFire(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable))
	h1, _ := pipe(t)
	h2, w2 := pipe(t)
	h3, _ := pipe(t)
	for _, h := range []Handle{h1, h2, h3} {
		require.NoError(t, r.Register(h, Read))
	}
	signal(t, w2)

	var rec recorder
	_, err := r.Dispatch(rec.callback, nil)
	require.NoError(t, err)
	assert.Equal(t, []Handle{h2}, rec.handles())

	sb := r.be.(*slotBackend)
	assert.Equal(t, 2, sb.count)
	assert.Equal(t, h1, sb.slots[0].handle)
	assert.Equal(t, h3, sb.slots[1].handle)
}

func TestSlotTableDeregister(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable))
	h1, _ := pipe(t)
	h2, _ := pipe(t)
	h3, w3 := pipe(t)
	for _, h := range []Handle{h1, h2, h3} {
		require.NoError(t, r.Register(h, Read))
	}

	require.NoError(t, r.Deregister(h2))
	assert.ErrorIs(t, r.Deregister(h2), ErrNotFound)
	assert.Equal(t, 2, r.Len())

	sb := r.be.(*slotBackend)
	assert.Equal(t, h1, sb.slots[0].handle)
	assert.Equal(t, h3, sb.slots[1].handle)

	signal(t, w3)
	var rec recorder
	_, err := r.Dispatch(rec.callback, nil)
	require.NoError(t, err)
	assert.Equal(t, []Handle{h3}, rec.handles())
}

func TestSlotTableDeregisterClosedHandle(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable))
	h, _ := pipe(t)
	dup, err := syscallDup(int(h))
	require.NoError(t, err)
	require.NoError(t, r.Register(Handle(dup), Read))
	require.NoError(t, closeFd(dup))

	assert.NoError(t, r.Deregister(Handle(dup)))
	assert.Equal(t, 0, r.Len())
}

// Regular files cannot join an epoll set, so the waitable cannot subscribe.
func TestSlotTableSubscribeFailureLeavesTableUnchanged(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable))
	h, _ := pipe(t)
	require.NoError(t, r.Register(h, Read))

	f, err := os.CreateTemp(t.TempDir(), "regular")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	err = r.Register(Handle(f.Fd()), Read)
	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "epoll_ctl add", pe.Op)
	assert.Equal(t, 1, r.Len())
}

// A hung-up peer is reported even to a handle watched only for Write. The
// slot must fire and be consumed instead of leaving the wait spinning.
func TestSlotTableHangupFiresWriteOnlySlot(t *testing.T) {
	r := newTestReactor(t, WithBackend(SlotTable))

	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() { _ = unix.Close(p[0]) })
	require.NoError(t, r.Register(Handle(p[0]), Write))
	require.NoError(t, unix.Close(p[1]))

	var rec recorder
	done := make(chan struct{})
	var st Status
	var err error
	go func() {
		defer close(done)
		st, err = r.Dispatch(rec.callback, nil)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		r.Gate().Terminate()
		<-done
		t.Fatal("dispatch did not return for a hung-up write-only slot")
	}
	require.NoError(t, err)
	assert.Equal(t, StatusOK, st)
	require.Equal(t, []Handle{Handle(p[0])}, rec.handles())
	assert.Equal(t, Write, rec.fired[0].in)
	assert.Equal(t, 0, r.Len())
}
