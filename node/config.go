package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fzft/go-kami/reactor"
)

type Config struct {
	Network  string // "unix" or "tcp"
	Addr     string
	Backend  string // "indexset" or "slottable"
	Capacity int    // slot-table size, ignored by the index-set backend

	LogFile  string
	LogLevel string
	Daemon   bool
}

func DefaultConfig() Config {
	return Config{
		Network:  "unix",
		Addr:     filepath.Join(os.TempDir(), "kami.sock"),
		Backend:  reactor.IndexSet.String(),
		Capacity: reactor.DefaultCapacity,
		LogLevel: "info",
	}
}

func (c Config) Validate() error {
	switch c.Network {
	case "unix", "tcp", "tcp4", "tcp6":
	default:
		return fmt.Errorf("unsupported network %q", c.Network)
	}
	if c.Addr == "" {
		return fmt.Errorf("empty listen address")
	}
	if _, err := c.BackendKind(); err != nil {
		return err
	}
	if c.Capacity < 2 {
		return fmt.Errorf("capacity %d leaves no room for connections", c.Capacity)
	}
	if c.Daemon && c.LogFile == "" {
		return fmt.Errorf("daemon mode needs a log file")
	}
	return nil
}

func (c Config) BackendKind() (reactor.BackendKind, error) {
	switch c.Backend {
	case reactor.IndexSet.String():
		return reactor.IndexSet, nil
	case reactor.SlotTable.String():
		return reactor.SlotTable, nil
	}
	return 0, fmt.Errorf("unknown backend %q", c.Backend)
}
