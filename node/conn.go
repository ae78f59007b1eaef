package node

// Conn is the interface for connection.
type Conn interface {
	// Read drains whatever the peer has sent so far.
	Read() (data []byte, err error)

	// Write queues data and sends as much as the socket accepts right now.
	// The rest goes out once the socket is writable again.
	Write(data []byte) (err error)

	// Close closes the connection.
	Close() error

	Fd() int
	Addr() string
}
