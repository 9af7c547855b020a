//go:build !unix

package fileutil

import (
	"errors"
	"os"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("file is locked by another process")

// Lock is a placeholder on platforms without flock. TryLock only creates
// the lock file; single-instance operation is then an assumption.
type Lock struct {
	file *os.File
}

// TryLock opens path without locking it.
func TryLock(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 -- configured store path
	if err != nil {
		return nil, err
	}
	return &Lock{file: file}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.file.Name()
}

// Unlock closes the lock file.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
