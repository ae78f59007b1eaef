package reactor

import (
	"sync"
	"sync/atomic"
)

// Gate is the interrupt gate bracketing the readiness wait.
//
// Its wake descriptor is part of every wait set, so a Terminate or Wake
// issued at any instant, including just before the wait begins, makes the
// wait return instead of blocking. Termination is level-triggered: once set
// it stays set and the wake descriptor is never drained again.
type Gate struct {
	terminated atomic.Bool

	mu sync.Mutex // guards fd against close racing a kick
	fd int
}

// Terminate sets the termination flag and interrupts any wait in progress.
// It is safe to call from any goroutine, any number of times.
func (g *Gate) Terminate() {
	if g.terminated.CompareAndSwap(false, true) {
		g.kick()
	}
}

// Wake interrupts the wait without requesting termination. The dispatching
// goroutine treats it as spurious and waits again.
func (g *Gate) Wake() {
	g.kick()
}

func (g *Gate) Terminated() bool {
	return g.terminated.Load()
}

func (g *Gate) kick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fd >= 0 {
		kickFd(g.fd)
	}
}

// interrupted decides what a readable wake descriptor means. It returns true
// when termination was requested; otherwise the spurious wake is consumed.
func (g *Gate) interrupted() bool {
	if g.Terminated() {
		return true
	}
	drainFd(g.fd)
	return false
}

func (g *Gate) close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fd < 0 {
		return nil
	}
	err := closeFd(g.fd)
	g.fd = -1
	return err
}
