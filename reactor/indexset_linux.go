//go:build linux
// +build linux

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdSetSize is the number of handles one unix.FdSet can address.
const fdSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

// indexSet keeps one bit per handle for each interest. bound is one past
// the highest watched handle; every set bit lies below it and no smaller
// value has that property.
type indexSet struct {
	read    unix.FdSet
	write   unix.FdSet
	persist unix.FdSet
	bound   int
	count   int

	// highest handle registered while a cycle is firing callbacks, -1 when
	// no cycle is running or nothing was registered.
	cycleHigh int
	inCycle   bool
}

func newIndexSet(g *Gate) (*indexSet, error) {
	if g.fd >= fdSetSize {
		return nil, newPlatformError("select", unix.EMFILE)
	}
	return &indexSet{cycleHigh: -1}, nil
}

func (s *indexSet) interest(h int) Interest {
	var in Interest
	if s.read.IsSet(h) {
		in |= Read
	}
	if s.write.IsSet(h) {
		in |= Write
	}
	return in
}

func (s *indexSet) register(h Handle, in Interest, oneShot bool) error {
	fd := int(h)
	if fd < 0 || fd >= fdSetSize {
		return ErrHandleOutOfRange
	}

	if s.interest(fd) == 0 {
		s.count++
	}
	if in&Read != 0 {
		s.read.Set(fd)
	}
	if in&Write != 0 {
		s.write.Set(fd)
	}
	if oneShot {
		s.persist.Clear(fd)
	} else {
		s.persist.Set(fd)
	}

	if fd >= s.bound {
		s.bound = fd + 1
	}
	if s.inCycle && fd > s.cycleHigh {
		s.cycleHigh = fd
	}
	return nil
}

func (s *indexSet) deregister(h Handle) error {
	fd := int(h)
	if fd < 0 || fd >= fdSetSize || s.interest(fd) == 0 {
		return ErrNotFound
	}
	s.drop(fd)
	if fd == s.bound-1 {
		s.bound = s.highestFrom(fd-1) + 1
	}
	return nil
}

// drop clears every bit of fd. It does not touch the boundary.
func (s *indexSet) drop(fd int) {
	s.read.Clear(fd)
	s.write.Clear(fd)
	s.persist.Clear(fd)
	s.count--
}

// highestFrom returns the highest watched handle at or below fd, or -1.
func (s *indexSet) highestFrom(fd int) int {
	for ; fd >= 0; fd-- {
		if s.interest(fd) != 0 {
			return fd
		}
	}
	return -1
}

func (s *indexSet) watched(h Handle) (Interest, bool) {
	fd := int(h)
	if fd < 0 || fd >= fdSetSize {
		return 0, false
	}
	in := s.interest(fd)
	return in, in != 0
}

func (s *indexSet) len() int {
	return s.count
}

func (s *indexSet) boundary() int {
	return s.bound
}

func (s *indexSet) close() error {
	*s = indexSet{cycleHigh: -1}
	return nil
}

func (s *indexSet) cycle(g *Gate, cb Callback, arg any) (Status, error) {
	for {
		if g.Terminated() {
			return StatusTerminated, nil
		}

		r, w := s.read, s.write
		r.Set(g.fd)
		nfd := s.bound
		if g.fd >= nfd {
			nfd = g.fd + 1
		}

		n, err := unix.Select(nfd, &r, &w, nil, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return StatusOK, newWaitError("select", err)
		}

		if r.IsSet(g.fd) {
			if g.interrupted() {
				return StatusTerminated, nil
			}
			r.Clear(g.fd)
			n--
		}
		if n <= 0 {
			continue
		}

		s.fire(&r, &w, n, cb, arg)
		return StatusOK, nil
	}
}

// fire walks the ready sets in increasing handle order. Each ready interest
// is consumed before its callback runs, unless the registration is
// persistent. If the topmost handle is consumed, the boundary is pulled down
// to the highest handle still watched, which the same walk already found.
func (s *indexSet) fire(r, w *unix.FdSet, remaining int, cb Callback, arg any) {
	top := s.bound - 1
	last := -1

	s.inCycle = true
	s.cycleHigh = -1
	defer func() {
		s.inCycle = false
		s.cycleHigh = -1
	}()

	for fd := 0; fd <= top && remaining > 0; fd++ {
		var ready Interest
		if r.IsSet(fd) {
			remaining--
			ready |= Read
		}
		if w.IsSet(fd) {
			remaining--
			ready |= Write
		}

		// A callback earlier in this walk may have dropped fd.
		ready &= s.interest(fd)
		if ready == 0 {
			if s.interest(fd) != 0 {
				last = fd
			}
			continue
		}

		if !s.persist.IsSet(fd) {
			s.consume(fd, ready)
			if fd == top && s.bound == top+1 && s.interest(fd) == 0 {
				s.bound = s.tighten(last) + 1
			}
		}
		if s.interest(fd) != 0 {
			last = fd
		}

		cb(Handle(fd), ready, arg)
	}
}

func (s *indexSet) consume(fd int, ready Interest) {
	if ready&Read != 0 {
		s.read.Clear(fd)
	}
	if ready&Write != 0 {
		s.write.Clear(fd)
	}
	if s.interest(fd) == 0 {
		s.persist.Clear(fd)
		s.count--
	}
}

// tighten picks the new top below the consumed one. last is the highest
// handle the walk saw still watched; callbacks that ran during the walk may
// have registered something above it or dropped it.
func (s *indexSet) tighten(last int) int {
	if s.cycleHigh > last {
		last = s.cycleHigh
	}
	if last >= s.bound {
		last = s.bound - 1
	}
	return s.highestFrom(last)
}
