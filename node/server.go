//go:build linux
// +build linux

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fzft/go-kami/log"
	"github.com/fzft/go-kami/reactor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrServerClosed = errors.New("server closed")

type fileListener interface {
	net.Listener
	File() (*os.File, error)
}

// Server accepts connections on one listening socket and serves them from a
// single dispatch loop.
type Server struct {
	cfg     Config
	reactor *reactor.Reactor
	handler ReaderHandler

	ln     fileListener
	lnFile *os.File
	lnFd   int
	conns  map[int]*DefaultConn
	closed bool
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := cfg.BackendKind()
	if err != nil {
		return nil, err
	}

	r := reactor.New(reactor.WithBackend(kind), reactor.WithCapacity(cfg.Capacity))
	if _, err := r.Init(); err != nil {
		return nil, err
	}

	return &Server{
		cfg:     cfg,
		reactor: r,
		handler: DefaultHandler{},
		lnFd:    -1,
		conns:   make(map[int]*DefaultConn),
	}, nil
}

func (s *Server) SetHandler(handler ReaderHandler) {
	s.handler = handler
}

// Listen opens the listening socket and arms it for accept. It is separate
// from Serve so callers can learn the bound address first.
func (s *Server) Listen() error {
	if s.cfg.Network == "unix" {
		if err := os.Remove(s.cfg.Addr); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	ln, err := net.Listen(s.cfg.Network, s.cfg.Addr)
	if err != nil {
		log.Logger.Error("listen error", zap.Error(err))
		return err
	}
	fl, ok := ln.(fileListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("listener %T has no descriptor", ln)
	}

	f, err := fl.File()
	if err != nil {
		_ = ln.Close()
		log.Logger.Error("failed to get listener fd", zap.Error(err))
		return err
	}
	fd := int(f.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = f.Close()
		_ = ln.Close()
		return os.NewSyscallError("setnonblock", err)
	}

	s.ln = fl
	s.lnFile = f
	s.lnFd = fd

	if err := s.armListener(); err != nil {
		return err
	}
	log.Logger.Info("listening",
		zap.String("network", s.cfg.Network),
		zap.String("addr", s.Addr()),
		zap.String("backend", s.cfg.Backend))
	return nil
}

func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) armListener() error {
	return s.reactor.Register(reactor.Handle(s.lnFd), reactor.Accept)
}

// Run serves until SIGINT, SIGTERM or SIGQUIT arrives or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case sig := <-sigCh:
			log.Logger.Info("signal received", zap.String("signal", sig.String()))
			s.reactor.Gate().Terminate()
		case <-stop:
		}
	}()

	return s.Serve(ctx)
}

// Serve runs the dispatch loop until ctx is done or the reactor's gate is
// terminated. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.closed {
		return ErrServerClosed
	}
	if s.lnFd < 0 {
		return errors.New("serve called before listen")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.reactor.Gate().Terminate()
		case <-stop:
		}
	}()

	for {
		st, err := s.reactor.Dispatch(onReady, s)
		if err != nil {
			log.Logger.Error("dispatch failed", zap.Error(err))
			return err
		}

		switch st {
		case reactor.StatusTerminated:
			log.Logger.Info("shutting down server")
			return nil
		case reactor.StatusNoWatchedResources:
			// the listener is always re-armed, so this means it was lost
			return errors.New("listener is no longer watched")
		}
	}
}

// Terminate asks a running Serve to return. Safe from any goroutine.
func (s *Server) Terminate() {
	s.reactor.Gate().Terminate()
}

func onReady(h reactor.Handle, ready reactor.Interest, arg any) {
	s := arg.(*Server)
	if int(h) == s.lnFd {
		s.acceptAll()
		return
	}

	c, ok := s.conns[int(h)]
	if !ok {
		log.Logger.Warn("ready handle without connection", zap.Int("fd", int(h)))
		return
	}
	s.serveConn(c, ready)
}

func (s *Server) serveConn(c *DefaultConn, ready reactor.Interest) {
	if ready&reactor.Write != 0 {
		if err := c.flush(); err != nil {
			s.drop(c, err)
			return
		}
	}

	if ready&reactor.Read != 0 {
		if err := s.handler.Read(c); err != nil {
			s.drop(c, err)
			return
		}
		if c.closed {
			return
		}
		if err := s.reactor.Register(reactor.Handle(c.fd), reactor.Read); err != nil {
			s.drop(c, err)
		}
	}
}

func (s *Server) drop(c *DefaultConn, cause error) {
	if errors.Is(cause, io.EOF) {
		log.Logger.Debug("connection closed by peer", zap.Int("fd", c.fd), zap.String("addr", c.addr))
	} else {
		log.Logger.Warn("closing connection", zap.Int("fd", c.fd), zap.Error(cause))
	}
	if err := c.Close(); err != nil {
		log.Logger.Error("close connection", zap.Int("fd", c.fd), zap.Error(err))
	}
}

func (s *Server) forget(c *DefaultConn) {
	delete(s.conns, c.fd)
}

// Close closes every connection, the listener and the reactor.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	conns := make([]*DefaultConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}

	if s.lnFile != nil {
		err = multierr.Append(err, s.lnFile.Close())
	}
	if s.ln != nil {
		err = multierr.Append(err, s.ln.Close())
	}
	return multierr.Append(err, s.reactor.Close())
}
