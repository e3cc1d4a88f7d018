//go:build !windows

package lock

import "syscall"

// IsRunning reports the PID in the lock file and whether that process is
// alive.
func (l *Lock) IsRunning() (int, bool) {
	pid, err := l.Read()
	if err != nil {
		return 0, false
	}
	// Signal 0 tests if the process exists without sending a signal.
	err = syscall.Kill(pid, 0)
	return pid, err == nil
}
