//go:build linux
// +build linux

package node

import (
	"errors"
	"net"

	"github.com/fzft/go-kami/log"
	"github.com/fzft/go-kami/reactor"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// acceptAll drains the accept backlog. The listener registration was
// consumed by this firing, so it is re-armed before any connection is
// registered; connections that no longer fit in the reactor are refused.
func (s *Server) acceptAll() {
	if err := s.armListener(); err != nil {
		log.Logger.Error("failed to re-arm listener", zap.Error(err))
		s.Terminate()
		return
	}

	for {
		connFd, sa, err := unix.Accept4(s.lnFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if IsTemporaryError(err) || err == unix.ECONNABORTED {
				return
			}
			log.Logger.Error("accept error", zap.Error(err))
			return
		}

		if err := s.reactor.Register(reactor.Handle(connFd), reactor.Read); err != nil {
			if errors.Is(err, reactor.ErrCapacityExceeded) || errors.Is(err, reactor.ErrHandleOutOfRange) {
				log.Logger.Warn("refusing connection", zap.Int("fd", connFd), zap.Error(err))
			} else {
				log.Logger.Error("register read error", zap.Int("fd", connFd), zap.Error(err))
			}
			_ = CloseFd(connFd)
			continue
		}

		c := newConn(connFd, peerAddr(sa), s)
		s.conns[connFd] = c
		log.Logger.Debug("new connection", zap.Int("fd", connFd), zap.String("addr", c.addr))
	}
}

func peerAddr(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return (&net.TCPAddr{IP: net.IP(addr.Addr[:]), Port: addr.Port}).String()
	case *unix.SockaddrInet6:
		return (&net.TCPAddr{IP: net.IP(addr.Addr[:]), Port: addr.Port}).String()
	case *unix.SockaddrUnix:
		if addr.Name == "" {
			return "@"
		}
		return addr.Name
	}
	return ""
}
