//go:build unix

package fileutil

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("file is locked by another process")

// Lock is an exclusive advisory lock held on a lock file.
type Lock struct {
	file *os.File
}

// TryLock acquires an exclusive flock on path, creating the file if needed.
// It does not block: if another process holds the lock, ErrLocked is returned.
func TryLock(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 -- configured store path
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &Lock{file: file}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.file.Name()
}

// Unlock releases the lock. The lock file itself is left in place so that
// a concurrent TryLock never races with its removal.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
