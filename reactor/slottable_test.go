package reactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFake = errors.New("fake failure")

type fakeWaitable struct {
	id        int
	interest  Interest
	signaled  Interest
	closed    bool
	failSub   bool
	failUnsub bool
	failResub bool
	unsubs    int
}

func (f *fakeWaitable) fd() int { return f.id }

func (f *fakeWaitable) subscribe(_ Handle, in Interest) error {
	if f.failSub {
		return errFake
	}
	f.interest = in
	return nil
}

func (f *fakeWaitable) resubscribe(_ Handle, in Interest) error {
	if f.failResub {
		return errFake
	}
	f.interest = in
	return nil
}

func (f *fakeWaitable) unsubscribe(Handle) error {
	if f.failUnsub {
		return errFake
	}
	f.unsubs++
	f.interest = 0
	return nil
}

func (f *fakeWaitable) pending() (Interest, error) { return f.signaled & f.interest, nil }

func (f *fakeWaitable) close() error {
	f.closed = true
	return nil
}

type fakeHost struct {
	made    []*fakeWaitable
	next    func(*fakeWaitable)
	failNew bool
}

func (h *fakeHost) alloc() (waitable, error) {
	if h.failNew {
		return nil, errFake
	}
	w := &fakeWaitable{id: len(h.made)}
	if h.next != nil {
		h.next(w)
	}
	h.made = append(h.made, w)
	return w, nil
}

func (t *slotTable) handles() []Handle {
	hs := make([]Handle, 0, t.count)
	for _, s := range t.slots[:t.count] {
		hs = append(hs, s.handle)
	}
	return hs
}

func TestSlotTableArenaCompaction(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(4, host.alloc)
	for _, h := range []Handle{10, 11, 12, 13} {
		require.NoError(t, tbl.register(h, Read, true))
	}
	assert.ErrorIs(t, tbl.register(14, Read, true), ErrCapacityExceeded)
	assert.Len(t, host.made, 4)

	require.NoError(t, tbl.deregister(11))
	assert.Equal(t, []Handle{10, 12, 13}, tbl.handles())
	assert.True(t, host.made[1].closed)
	assert.Equal(t, 1, host.made[1].unsubs)
	assert.Equal(t, slot{}, tbl.slots[3])

	// the freed slot is reused by the next registration
	require.NoError(t, tbl.register(14, Write, true))
	assert.Equal(t, []Handle{10, 12, 13, 14}, tbl.handles())
}

func TestSlotTableAllocFailureLeavesTableUnchanged(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(2, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))

	host.failNew = true
	assert.ErrorIs(t, tbl.register(2, Read, true), errFake)
	assert.Equal(t, []Handle{1}, tbl.handles())
}

func TestSlotTableSubscribeFailureReleasesWaitable(t *testing.T) {
	host := &fakeHost{next: func(w *fakeWaitable) { w.failSub = true }}
	tbl := newSlotTable(2, host.alloc)

	assert.ErrorIs(t, tbl.register(1, Read, true), errFake)
	assert.Equal(t, 0, tbl.len())
	require.Len(t, host.made, 1)
	assert.True(t, host.made[0].closed)
}

func TestSlotTableMergeInterest(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(2, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))
	require.NoError(t, tbl.register(1, Write, true))

	in, ok := tbl.watched(1)
	require.True(t, ok)
	assert.Equal(t, Read|Write, in)
	assert.Equal(t, Read|Write, host.made[0].interest)
	assert.Len(t, host.made, 1)

	host.made[0].failResub = true
	require.NoError(t, tbl.register(1, Read, true), "no change, no host call")
}

func TestSlotTableMergeFailureKeepsInterest(t *testing.T) {
	host := &fakeHost{next: func(w *fakeWaitable) { w.failResub = true }}
	tbl := newSlotTable(2, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))

	assert.ErrorIs(t, tbl.register(1, Write, true), errFake)
	in, _ := tbl.watched(1)
	assert.Equal(t, Read, in)
}

func TestSlotTableDeregisterFailureKeepsSlot(t *testing.T) {
	host := &fakeHost{next: func(w *fakeWaitable) { w.failUnsub = true }}
	tbl := newSlotTable(2, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))

	assert.ErrorIs(t, tbl.deregister(1), errFake)
	assert.Equal(t, 1, tbl.len())
	assert.False(t, host.made[0].closed)
	assert.ErrorIs(t, tbl.deregister(2), ErrNotFound)
}

func TestSlotTableFire(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(4, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))
	require.NoError(t, tbl.register(2, Read|Write, true))
	require.NoError(t, tbl.register(3, Read, false))

	tbl.ready = append(tbl.ready[:0],
		readySlot{w: host.made[0], ready: Read},
		readySlot{w: host.made[1], ready: Write},
		readySlot{w: host.made[2], ready: Read},
	)

	var rec recorder
	require.NoError(t, tbl.fire(rec.callback, nil))
	assert.Equal(t, []firing{{1, Read}, {2, Write}, {3, Read}}, rec.fired)

	assert.Equal(t, []Handle{2, 3}, tbl.handles())
	in, _ := tbl.watched(2)
	assert.Equal(t, Read, in)
	assert.Equal(t, Read, host.made[1].interest)
	assert.True(t, host.made[0].closed)
	assert.False(t, host.made[2].closed)
}

func TestSlotTableFireSkipsRemovedSlots(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(4, host.alloc)
	require.NoError(t, tbl.register(1, Read, true))
	require.NoError(t, tbl.register(2, Read, true))
	tbl.ready = append(tbl.ready[:0],
		readySlot{w: host.made[0], ready: Read},
		readySlot{w: host.made[1], ready: Read},
	)

	var fired []Handle
	require.NoError(t, tbl.fire(func(h Handle, _ Interest, _ any) {
		fired = append(fired, h)
		// dropping and re-adding 2 gives it a fresh waitable that was not
		// part of this wait
		require.NoError(t, tbl.deregister(2))
		require.NoError(t, tbl.register(2, Read, true))
	}, nil))

	assert.Equal(t, []Handle{1}, fired)
	assert.Equal(t, []Handle{2}, tbl.handles())
}

func TestSlotTableCloseAll(t *testing.T) {
	host := &fakeHost{}
	tbl := newSlotTable(3, host.alloc)
	for _, h := range []Handle{1, 2, 3} {
		require.NoError(t, tbl.register(h, Read, true))
	}

	require.NoError(t, tbl.closeAll())
	assert.Equal(t, 0, tbl.len())
	for _, w := range host.made {
		assert.True(t, w.closed)
	}
}
