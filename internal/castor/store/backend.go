package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/pkg/errors"
)

// Backend is the physical storage a tier maps to. Keys are opaque
// relative paths derived from chunk hashes; the backend has no notion
// of hashes, compression, or reference counts.
type Backend interface {
	// ID names the backend; it is recorded on every ChunkRecord so a
	// relocation can change backends without touching manifests.
	ID() string

	// Write persists data under key atomically: a crash mid-write must
	// never leave a partial object visible at the final key.
	Write(key string, data []byte) error

	Read(key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	Exists(key string) (bool, error)
}

// retry parameters for transient backend I/O. Integrity errors are
// never retried; only plain I/O failures are.
const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// withRetry runs op up to retryAttempts times with doubling backoff.
func withRetry(op func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt < retryAttempts-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return err
}

// FSBackend stores objects as files under a root directory. Writes go
// through a temp file and an atomic rename.
type FSBackend struct {
	id   string
	root string
}

// NewFSBackend creates the root directory if needed.
func NewFSBackend(id, root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating backend root %s", root)
	}
	return &FSBackend{id: id, root: root}, nil
}

func (b *FSBackend) ID() string { return b.id }

func (b *FSBackend) Write(key string, data []byte) error {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	return withRetry(func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrapf(err, "creating chunk dir for %s", key)
		}
		// renameio stages the write in a temp file on the same
		// filesystem and renames it into place.
		if err := renameio.WriteFile(path, data, 0644); err != nil {
			return errors.Wrapf(err, "writing chunk %s", key)
		}
		return nil
	})
}

func (b *FSBackend) Read(key string) ([]byte, error) {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	var data []byte
	err := withRetry(func() error {
		var readErr error
		data, readErr = os.ReadFile(path)
		return readErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading chunk %s", key)
	}
	return data, nil
}

func (b *FSBackend) Delete(key string) error {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting chunk %s", key)
	}
	return nil
}

func (b *FSBackend) Exists(key string) (bool, error) {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "statting chunk %s", key)
}
