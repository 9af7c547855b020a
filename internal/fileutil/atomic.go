// Package fileutil provides the small file primitives the usage store is
// built on: atomic replacement and exclusive instance locks.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWrite replaces the file at path with data using a write-rename pattern.
// Readers observe either the previous content or the new content, never a
// partial write. The parent directory is synced after the rename so the new
// directory entry survives a power loss.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename to final path: %w", err)
	}

	return syncDir(filepath.Dir(path))
}

// writeTemp writes data to a unique sibling of path and returns its name.
// The temp file lives in the same directory so the rename stays on one filesystem.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	fail := func(stage string, err error) (string, error) {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%s temp file: %w", stage, err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fail("sync", err)
	}
	// CreateTemp uses 0600.
	if err := tmpFile.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmpPath, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir) // #nosec G304 -- parent of a configured path
	if err != nil {
		return fmt.Errorf("open parent directory: %w", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync parent directory: %w", err)
	}
	return nil
}
