//go:build linux
// +build linux

package daemon

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RedirectOutput truncates path and makes it the process's standard output
// and standard error.
func RedirectOutput(path string) error {
	return redirect(path, unix.Stdout, unix.Stderr)
}

func redirect(path string, targets ...int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	for _, fd := range targets {
		if err := unix.Dup3(int(f.Fd()), fd, 0); err != nil {
			return fmt.Errorf("failed to set fd %d to %s: %w", fd, path, os.NewSyscallError("dup3", err))
		}
	}
	return nil
}
