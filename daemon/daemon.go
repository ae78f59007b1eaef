// Package daemon detaches the service node from its controlling terminal.
//
// Go cannot fork a running runtime, so detaching re-executes the binary in a
// new session instead; the child recognises itself with IsDetached.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/fzft/go-kami/log"
	"go.uber.org/zap"
)

const envDetached = "KAMI_DETACHED"

// IsDetached reports whether this process is the re-executed child.
func IsDetached() bool {
	return os.Getenv(envDetached) == "1"
}

// Detach starts a copy of the running binary with the same arguments in a
// new session, with stdin bound to /dev/null, and returns the child's pid.
// The caller is expected to exit once it returns successfully.
func Detach() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}
	return detach(exe, os.Args[1:])
}

func detach(exe string, args []string) (int, error) {
	null, err := os.Open(os.DevNull)
	if err != nil {
		return 0, err
	}
	defer null.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), envDetached+"=1")
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start new session: %w", err)
	}
	pid := cmd.Process.Pid
	log.Logger.Info("detached", zap.Int("pid", pid))
	return pid, cmd.Process.Release()
}
