//go:build linux
// +build linux

package node

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/eapache/queue"
	"github.com/fzft/go-kami/reactor"
	"golang.org/x/sys/unix"
)

var errConnClosed = errors.New("connection closed")

const readChunk = 4096

// DefaultConn is a non-blocking socket watched by the server's reactor.
// Pending output is a queue of byte slices; the head may be partly written.
type DefaultConn struct {
	fd     int
	addr   string
	out    *queue.Queue
	srv    *Server
	closed bool
}

func newConn(fd int, addr string, srv *Server) *DefaultConn {
	return &DefaultConn{
		fd:   fd,
		addr: addr,
		out:  queue.New(),
		srv:  srv,
	}
}

func (c *DefaultConn) Read() ([]byte, error) {
	if c.closed {
		return nil, errConnClosed
	}

	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	for {
		n, err := unix.Read(c.fd, chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if IsTemporaryError(err) {
				break
			}
			return buf.Bytes(), os.NewSyscallError("read", err)
		}
		if n == 0 {
			return buf.Bytes(), io.EOF
		}
	}
	return buf.Bytes(), nil
}

func (c *DefaultConn) Write(data []byte) error {
	if c.closed {
		return errConnClosed
	}
	if len(data) == 0 {
		return nil
	}

	p := make([]byte, len(data))
	copy(p, data)
	c.out.Add(p)

	return c.flush()
}

// flush writes queued data until the queue is empty or the socket would
// block, in which case write interest is registered.
func (c *DefaultConn) flush() error {
	for c.out.Length() > 0 {
		head := c.out.Peek().([]byte)
		n, err := unix.Write(c.fd, head)
		if err != nil {
			if IsTemporaryError(err) {
				break
			}
			return os.NewSyscallError("write", err)
		}
		if n < len(head) {
			c.out.Remove()
			c.requeueFront(head[n:])
			break
		}
		c.out.Remove()
	}

	if c.out.Length() > 0 {
		return c.srv.reactor.Register(reactor.Handle(c.fd), reactor.Write)
	}
	return nil
}

// requeueFront puts the unwritten tail of the head back in front.
func (c *DefaultConn) requeueFront(rest []byte) {
	q := queue.New()
	q.Add(rest)
	for c.out.Length() > 0 {
		q.Add(c.out.Remove())
	}
	c.out = q
}

// Pending returns the number of queued chunks not yet written.
func (c *DefaultConn) Pending() int {
	return c.out.Length()
}

func (c *DefaultConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.srv.forget(c)

	if err := c.srv.reactor.Deregister(reactor.Handle(c.fd)); err != nil && !errors.Is(err, reactor.ErrNotFound) {
		_ = CloseFd(c.fd)
		return err
	}
	return os.NewSyscallError("close", CloseFd(c.fd))
}

// Fd returns the file descriptor of the connection.
func (c *DefaultConn) Fd() int {
	return c.fd
}

// Addr returns the peer address of the connection.
func (c *DefaultConn) Addr() string {
	return c.addr
}
