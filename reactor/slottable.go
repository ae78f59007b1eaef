package reactor

import "go.uber.org/multierr"

// waitable is the per-slot object the slot table allocates from the host. It
// is subscribed to exactly the interests of its slot.
type waitable interface {
	fd() int
	subscribe(h Handle, in Interest) error
	resubscribe(h Handle, in Interest) error
	unsubscribe(h Handle) error

	// pending tests the waitable without blocking and returns the interests
	// that are actually signaled.
	pending() (Interest, error)
	close() error
}

type slot struct {
	handle   Handle
	interest Interest
	oneShot  bool
	w        waitable
}

// slotTable is a fixed capacity arena of slots. Live slots occupy
// slots[:count] with no holes and no duplicate handle; removal shifts the
// tail down by one.
type slotTable struct {
	slots []slot
	count int
	alloc func() (waitable, error)
	ready []readySlot
}

type readySlot struct {
	w     waitable
	ready Interest
}

func newSlotTable(capacity int, alloc func() (waitable, error)) *slotTable {
	return &slotTable{
		slots: make([]slot, capacity),
		alloc: alloc,
		ready: make([]readySlot, 0, capacity),
	}
}

func (t *slotTable) capacity() int {
	return len(t.slots)
}

func (t *slotTable) indexOf(h Handle) int {
	for i := 0; i < t.count; i++ {
		if t.slots[i].handle == h {
			return i
		}
	}
	return -1
}

func (t *slotTable) indexOfWaitable(w waitable) int {
	for i := 0; i < t.count; i++ {
		if t.slots[i].w == w {
			return i
		}
	}
	return -1
}

func (t *slotTable) register(h Handle, in Interest, oneShot bool) error {
	if i := t.indexOf(h); i >= 0 {
		s := &t.slots[i]
		merged := s.interest | in
		if merged != s.interest {
			if err := s.w.resubscribe(h, merged); err != nil {
				return err
			}
			s.interest = merged
		}
		s.oneShot = oneShot
		return nil
	}

	if t.count == len(t.slots) {
		return ErrCapacityExceeded
	}

	w, err := t.alloc()
	if err != nil {
		return err
	}
	if err := w.subscribe(h, in); err != nil {
		_ = w.close()
		return err
	}

	t.slots[t.count] = slot{handle: h, interest: in, oneShot: oneShot, w: w}
	t.count++
	return nil
}

func (t *slotTable) deregister(h Handle) error {
	i := t.indexOf(h)
	if i < 0 {
		return ErrNotFound
	}
	if err := t.release(i); err != nil {
		return err
	}
	t.removeAt(i)
	return nil
}

// release unsubscribes and destroys the waitable of slot i. The slot is left
// in place so a failure keeps the registration intact.
func (t *slotTable) release(i int) error {
	s := &t.slots[i]
	if err := s.w.unsubscribe(s.handle); err != nil {
		return err
	}
	return s.w.close()
}

func (t *slotTable) removeAt(i int) {
	copy(t.slots[i:t.count], t.slots[i+1:t.count])
	t.count--
	t.slots[t.count] = slot{}
}

func (t *slotTable) watched(h Handle) (Interest, bool) {
	if i := t.indexOf(h); i >= 0 {
		return t.slots[i].interest, true
	}
	return 0, false
}

func (t *slotTable) len() int {
	return t.count
}

// fire dispatches the slots collected in t.ready. Callbacks may register and
// deregister, so each entry is located again by its waitable, which is
// unique to a registration.
func (t *slotTable) fire(cb Callback, arg any) error {
	for _, r := range t.ready {
		i := t.indexOfWaitable(r.w)
		if i < 0 {
			continue
		}
		s := t.slots[i]
		ready := r.ready & s.interest
		if ready == 0 {
			continue
		}

		if s.oneShot {
			if err := t.consume(i, ready); err != nil {
				return err
			}
		}
		cb(s.handle, ready, arg)
	}
	return nil
}

// consume removes the fired interests of slot i, dropping the slot once
// nothing is left.
func (t *slotTable) consume(i int, ready Interest) error {
	s := &t.slots[i]
	if rest := s.interest &^ ready; rest != 0 {
		if err := s.w.resubscribe(s.handle, rest); err != nil {
			return err
		}
		s.interest = rest
		return nil
	}
	if err := t.release(i); err != nil {
		return err
	}
	t.removeAt(i)
	return nil
}

func (t *slotTable) closeAll() error {
	var err error
	for t.count > 0 {
		t.count--
		err = multierr.Append(err, t.slots[t.count].w.close())
		t.slots[t.count] = slot{}
	}
	return err
}
