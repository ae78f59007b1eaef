//go:build !linux
// +build !linux

package daemon

import "errors"

func RedirectOutput(string) error {
	return errors.New("output redirection is not supported on this platform")
}
