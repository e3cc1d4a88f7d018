//go:build windows

package lock

import (
	"os"
	"syscall"
)

// IsRunning reports the PID in the lock file and whether that process is
// alive.
func (l *Lock) IsRunning() (int, bool) {
	pid, err := l.Read()
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// FindProcess always succeeds on Windows.
	err = proc.Signal(syscall.Signal(0))
	return pid, err == nil
}
