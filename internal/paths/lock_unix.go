//go:build !windows

package paths

import (
	"errors"
	"os"
	"syscall"
)

// processAlive sends signal 0, which checks for the process without
// affecting it. EPERM means it exists under another user.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
