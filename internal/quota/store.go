// Package quota persists the running usage total between restarts.
//
// The store is a plain text file holding a single non-negative decimal
// integer (bytes used since the last reset) and nothing else.
package quota

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shini4i/trafficguard/internal/fileutil"
)

// DefaultPath is the store location used when none is configured.
const DefaultPath = "/var/lib/trafficguard/usage"

const filePerm = 0644

// ErrCorrupt is returned by Load when the stored value is not a
// non-negative integer. Callers treat the total as 0.
var ErrCorrupt = errors.New("stored usage total is not a non-negative integer")

// StoreError reports an I/O failure on the store file.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("usage store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store is the consumer interface for the persisted total.
type Store interface {
	// Ensure creates the store containing 0 if it does not exist yet.
	Ensure() error
	// Load returns the persisted total.
	Load() (uint64, error)
	// Save replaces the persisted total.
	Save(total uint64) error
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore keeps the total in a text file, replaced atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. An empty path selects DefaultPath.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// LockPath returns the path of the instance lock guarding this store.
func (s *FileStore) LockPath() string {
	return s.path + ".lock"
}

// Ensure creates the store containing "0" when it is missing.
// An existing file is never touched, whatever its content.
func (s *FileStore) Ensure() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) // #nosec G304 -- configured store path
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return &StoreError{Op: "create", Path: s.path, Err: err}
	}

	if _, err := f.WriteString("0"); err != nil {
		_ = f.Close()
		return &StoreError{Op: "create", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StoreError{Op: "create", Path: s.path, Err: err}
	}
	return nil
}

// Load reads the persisted total. An empty file yields 0 with no error.
// Unparseable content yields 0 and ErrCorrupt; I/O failures yield a *StoreError.
func (s *FileStore) Load() (uint64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, &StoreError{Op: "read", Path: s.path, Err: err}
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return 0, nil
	}

	total, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q: %w", s.path, truncate(value, 32), ErrCorrupt)
	}
	return total, nil
}

// Save replaces the store content with total's decimal representation.
func (s *FileStore) Save(total uint64) error {
	if err := fileutil.AtomicWrite(s.path, []byte(strconv.FormatUint(total, 10)), filePerm); err != nil {
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Lock takes the exclusive instance lock for this store.
// It fails with fileutil.ErrLocked when another instance holds it.
func (s *FileStore) Lock() (*fileutil.Lock, error) {
	return fileutil.TryLock(s.LockPath())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
