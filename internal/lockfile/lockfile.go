// Package lockfile keeps two hosts from opening the same scene database.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrLockAcquired = errors.New("lock already acquired")
	ErrLocked       = errors.New("scene is opened by another host")
)

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a new lockfile instance
func New(path string) *Lockfile {
	return &Lockfile{
		path: path,
	}
}

// ForScene returns the lock guarding the scene database at scenePath
func ForScene(scenePath string) *Lockfile {
	return New(scenePath + ".lock")
}

// TryAcquire attempts to acquire the lock. A lock left behind by a process
// that no longer runs is taken over.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return ErrLockAcquired
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := l.create()
	if os.IsExist(err) {
		holder, running := l.holder()
		if running {
			return fmt.Errorf("%w: pid %d holds %s", ErrLocked, holder, l.path)
		}
		if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("failed to remove stale lockfile: %w", removeErr)
		}
		file, err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

func (l *Lockfile) create() (*os.File, error) {
	return os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
}

// holder returns the recorded PID and whether that process still runs.
// Unreadable lockfiles count as stale.
func (l *Lockfile) holder() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

// Release releases the lock
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var err error
	if l.file != nil {
		if closeErr := l.file.Close(); closeErr != nil {
			err = closeErr
		}
		l.file = nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err != nil {
			err = fmt.Errorf("%v; failed to remove lockfile: %w", err, removeErr)
		} else {
			err = fmt.Errorf("failed to remove lockfile: %w", removeErr)
		}
	}

	l.locked = false
	return err
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
