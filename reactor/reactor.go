// Package reactor is a readiness multiplexer for a small set of descriptors.
//
// A Reactor watches handles for read or write readiness, blocks in Dispatch
// until at least one is ready, and invokes the callback once per ready handle.
// Registrations are one-shot unless Persistent is given: a handle that fired is
// no longer watched until it is registered again.
//
// Dispatch may be interrupted at any time through the reactor's Gate. A
// termination requested before or during the wait is never lost.
//
// Callbacks run synchronously on the dispatching goroutine. A callback that
// blocks starves every other watched handle until it returns, so keep them
// short and hand real work off elsewhere.
package reactor

import (
	"sync/atomic"

	"go.uber.org/multierr"
)

// Handle is an OS descriptor. The reactor never opens or closes it.
type Handle int

// Interest is the readiness condition a handle is watched for.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write

	// Accept is read readiness on a listening socket.
	Accept = Read

	interestMask = Read | Write
)

func (i Interest) String() string {
	switch i {
	case Read:
		return "read"
	case Write:
		return "write"
	case Read | Write:
		return "read|write"
	case 0:
		return "none"
	}
	return "invalid"
}

// Status is the non-error outcome of an Init or Dispatch call.
type Status uint8

const (
	StatusOK Status = iota
	StatusAlreadyInitialized
	StatusNoWatchedResources
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAlreadyInitialized:
		return "already initialized"
	case StatusNoWatchedResources:
		return "no watched resources"
	case StatusTerminated:
		return "terminated"
	}
	return "unknown"
}

// Callback receives a ready handle, the interests it is ready for and the
// argument passed to Dispatch.
type Callback func(h Handle, ready Interest, arg any)

// backend is a watch registry together with its readiness wait.
type backend interface {
	register(h Handle, in Interest, oneShot bool) error
	deregister(h Handle) error
	watched(h Handle) (Interest, bool)
	len() int
	cycle(g *Gate, cb Callback, arg any) (Status, error)
	close() error
}

type RegisterOption func(*registration)

type registration struct {
	oneShot bool
}

// Persistent keeps the registration after it fires.
func Persistent() RegisterOption {
	return func(r *registration) {
		r.oneShot = false
	}
}

type Reactor struct {
	opts        options
	be          backend
	gate        *Gate
	closed      bool
	dispatching atomic.Bool
}

func New(opts ...Option) *Reactor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Reactor{opts: o}
}

// Init allocates the gate and the registry. Calling it again reports
// StatusAlreadyInitialized.
func (r *Reactor) Init() (Status, error) {
	if r.closed {
		return StatusOK, ErrClosed
	}
	if r.be != nil {
		return StatusAlreadyInitialized, nil
	}

	g, err := newGate()
	if err != nil {
		return StatusOK, err
	}

	be, err := newBackend(r.opts, g)
	if err != nil {
		_ = g.close()
		return StatusOK, err
	}

	r.gate = g
	r.be = be
	return StatusOK, nil
}

func (r *Reactor) ready() error {
	if r.closed {
		return ErrClosed
	}
	if r.be == nil {
		return ErrNotInitialized
	}
	return nil
}

// Register adds interest for h, or merges it into an existing registration.
// It either fully succeeds or leaves the registry unchanged.
func (r *Reactor) Register(h Handle, in Interest, opts ...RegisterOption) error {
	if err := r.ready(); err != nil {
		return err
	}
	if in == 0 || in&^interestMask != 0 {
		return ErrInvalidInterest
	}

	reg := registration{oneShot: true}
	for _, opt := range opts {
		opt(&reg)
	}
	return r.be.register(h, in, reg.oneShot)
}

// Deregister stops watching h and releases anything the reactor allocated
// for it.
func (r *Reactor) Deregister(h Handle) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.be.deregister(h)
}

// Watched reports the interests h is currently registered for.
func (r *Reactor) Watched(h Handle) (Interest, bool) {
	if r.ready() != nil {
		return 0, false
	}
	return r.be.watched(h)
}

// Len returns the number of watched handles.
func (r *Reactor) Len() int {
	if r.ready() != nil {
		return 0
	}
	return r.be.len()
}

// Boundary returns one past the highest watched handle on the index-set
// backend, and -1 on any other backend.
func (r *Reactor) Boundary() int {
	if r.ready() != nil {
		return -1
	}
	if b, ok := r.be.(interface{ boundary() int }); ok {
		return b.boundary()
	}
	return -1
}

// Gate returns the interrupt gate, or nil before Init.
func (r *Reactor) Gate() *Gate {
	return r.gate
}

// Dispatch runs one wait and dispatch cycle. Only one Dispatch may be in
// flight per reactor; a nested or concurrent call fails with
// ErrReentrantDispatch.
func (r *Reactor) Dispatch(cb Callback, arg any) (Status, error) {
	if cb == nil {
		return StatusOK, ErrNilCallback
	}
	if !r.dispatching.CompareAndSwap(false, true) {
		return StatusOK, ErrReentrantDispatch
	}
	defer r.dispatching.Store(false)

	if err := r.ready(); err != nil {
		return StatusOK, err
	}

	if r.gate.Terminated() {
		return StatusTerminated, nil
	}
	if r.be.len() == 0 {
		return StatusNoWatchedResources, nil
	}
	return r.be.cycle(r.gate, cb, arg)
}

// Close releases the gate and every backend-owned waitable. Watched handles
// belong to the caller and stay open. Close holds the dispatch guard, so it
// fails with ErrReentrantDispatch while a Dispatch is in flight and a
// Dispatch that starts afterwards sees ErrClosed.
func (r *Reactor) Close() error {
	if !r.dispatching.CompareAndSwap(false, true) {
		return ErrReentrantDispatch
	}
	defer r.dispatching.Store(false)

	if r.closed {
		return nil
	}
	r.closed = true
	if r.be == nil {
		return nil
	}

	err := multierr.Append(r.be.close(), r.gate.close())
	r.be = nil
	return err
}
