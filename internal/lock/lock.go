// Package lock guards a target repository against concurrent sync runs
// with a PID file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joescharf/milesync/internal/models"
)

// ErrLocked is returned by Acquire when a live process holds the lock.
var ErrLocked = errors.New("sync already running")

// Lock is a PID file lock for one target repository.
type Lock struct {
	Path string
}

// New creates a Lock for the given path.
func New(path string) *Lock {
	return &Lock{Path: path}
}

// ForRepo returns the lock for repo under stateDir:
// <stateDir>/locks/<owner>_<repo>.pid.
func ForRepo(stateDir string, repo models.Repo) *Lock {
	return New(filepath.Join(stateDir, "locks", repo.Owner+"_"+repo.Name+".pid"))
}

// Acquire writes the current PID into the lock file. A lock left behind by
// a dead process is taken over.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil {
				return fmt.Errorf("write lock: %w", werr)
			}
			return cerr
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create lock: %w", err)
		}

		pid, running := l.IsRunning()
		if running {
			if pid == os.Getpid() {
				return nil
			}
			return fmt.Errorf("%w (pid %d holds %s)", ErrLocked, pid, l.Path)
		}
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return fmt.Errorf("%w (%s keeps reappearing)", ErrLocked, l.Path)
}

// Release removes the lock file if it still belongs to this process.
func (l *Lock) Release() error {
	pid, err := l.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if pid != os.Getpid() {
		return fmt.Errorf("lock %s is held by pid %d", l.Path, pid)
	}
	return os.Remove(l.Path)
}

// Read reads the PID from the lock file.
func (l *Lock) Read() (int, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid lock file content: %w", err)
	}
	return pid, nil
}
