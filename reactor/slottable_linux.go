//go:build linux
// +build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
)

func epollEvents(in Interest) uint32 {
	var ev uint32
	if in&Read != 0 {
		ev |= readEvents
	}
	if in&Write != 0 {
		ev |= writeEvents
	}
	return ev
}

// epollWaitable is a private epoll instance watching a single handle. The
// instance itself is pollable, which lets the slot table wait on all of them
// with one poll(2).
type epollWaitable struct {
	epfd int
}

func newEpollWaitable() (waitable, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newPlatformError("epoll_create1", err)
	}
	return &epollWaitable{epfd: epfd}, nil
}

func (e *epollWaitable) fd() int {
	return e.epfd
}

func (e *epollWaitable) subscribe(h Handle, in Interest) error {
	ev := &unix.EpollEvent{Fd: int32(h), Events: epollEvents(in)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, int(h), ev); err != nil {
		return newPlatformError("epoll_ctl add", err)
	}
	return nil
}

func (e *epollWaitable) resubscribe(h Handle, in Interest) error {
	ev := &unix.EpollEvent{Fd: int32(h), Events: epollEvents(in)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, int(h), ev); err != nil {
		return newPlatformError("epoll_ctl mod", err)
	}
	return nil
}

// unsubscribe tolerates a handle its owner already closed; the kernel drops
// closed descriptors from the interest list on its own.
func (e *epollWaitable) unsubscribe(h Handle) error {
	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, int(h), nil)
	switch err {
	case nil, unix.ENOENT, unix.EBADF:
		return nil
	}
	return newPlatformError("epoll_ctl del", err)
}

func (e *epollWaitable) pending() (Interest, error) {
	var evs [1]unix.EpollEvent
	n, err := unix.EpollWait(e.epfd, evs[:], 0)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, newWaitError("epoll_wait", err)
	}
	if n == 0 {
		return 0, nil
	}

	// HUP and ERR are reported whatever the subscription and stay
	// level-triggered, so they count as every interest.
	ev := evs[0].Events
	if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		return Read | Write, nil
	}
	var in Interest
	if ev&readEvents != 0 {
		in |= Read
	}
	if ev&writeEvents != 0 {
		in |= Write
	}
	return in, nil
}

func (e *epollWaitable) close() error {
	if err := unix.Close(e.epfd); err != nil {
		return newPlatformError("close", err)
	}
	return nil
}

type slotBackend struct {
	*slotTable
	pfds []unix.PollFd
}

func newSlotBackend(capacity int) *slotBackend {
	return &slotBackend{
		slotTable: newSlotTable(capacity, newEpollWaitable),
		pfds:      make([]unix.PollFd, capacity+1),
	}
}

// cycle waits on the gate and every slot's waitable. Each signaled slot is
// tested on its own before it fires; a slot merely sitting after the
// signaled one in the table is not treated as ready.
func (b *slotBackend) cycle(g *Gate, cb Callback, arg any) (Status, error) {
	for {
		if g.Terminated() {
			return StatusTerminated, nil
		}

		n := b.count
		b.pfds[0] = unix.PollFd{Fd: int32(g.fd), Events: unix.POLLIN}
		for i := 0; i < n; i++ {
			b.pfds[i+1] = unix.PollFd{Fd: int32(b.slots[i].w.fd()), Events: unix.POLLIN}
		}

		if _, err := unix.Poll(b.pfds[:n+1], -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return StatusOK, newWaitError("poll", err)
		}

		if b.pfds[0].Revents != 0 && g.interrupted() {
			return StatusTerminated, nil
		}

		b.ready = b.ready[:0]
		for i := 0; i < n; i++ {
			if b.pfds[i+1].Revents == 0 {
				continue
			}
			s := &b.slots[i]
			in, err := s.w.pending()
			if err != nil {
				return StatusOK, err
			}
			if in&s.interest != 0 {
				b.ready = append(b.ready, readySlot{w: s.w, ready: in})
			}
		}
		if len(b.ready) == 0 {
			continue
		}

		if err := b.fire(cb, arg); err != nil {
			return StatusOK, err
		}
		return StatusOK, nil
	}
}

func (b *slotBackend) close() error {
	return b.closeAll()
}
