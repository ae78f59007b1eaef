package node

import (
	"bytes"

	"github.com/fzft/go-kami/log"
	"go.uber.org/zap"
)

// ReaderHandler defines an interface for custom read logic. It is called
// from the dispatch loop whenever a connection is readable, so it must not
// block.
type ReaderHandler interface {
	Read(conn Conn) error
}

// DefaultHandler answers each PING line with PONG and echoes every other
// line.
type DefaultHandler struct{}

var (
	ping = []byte("PING")
	pong = []byte("PONG\n")
)

func (dh DefaultHandler) Read(conn Conn) error {
	data, err := conn.Read()
	if len(data) > 0 {
		log.Logger.Debug("read data", zap.Int("fd", conn.Fd()), zap.ByteString("data", data))
		if werr := conn.Write(reply(data)); werr != nil {
			return werr
		}
	}
	return err
}

func reply(data []byte) []byte {
	if !bytes.Contains(data, ping) {
		return data
	}
	out := make([]byte, 0, len(data))
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if bytes.Equal(bytes.TrimRight(line, "\r\n"), ping) {
			out = append(out, pong...)
			continue
		}
		out = append(out, line...)
	}
	return out
}
