package index

import (
	"os"
	"time"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// File manages one on-disk index. Reads parse the current file, which
// is always complete because writers replace it atomically. Writes run
// inside an exclusive section guarded by a lockfile: the in-memory
// index is reloaded from disk after the lock is taken, never trusted
// as a cache across the boundary, then mutated and atomically renamed
// into place.
type File struct {
	path     string
	lockPath string
}

// NewFile returns a handle for the index at path. Nothing is touched
// until Load or Update.
func NewFile(path string) *File {
	return &File{path: path, lockPath: path + ".lock"}
}

// Path returns the index file location.
func (f *File) Path() string { return f.path }

// Load reads the current index. A missing file is an empty index, not
// an error (a fresh repository has nothing staged).
func (f *File) Load() (*Index, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading index")
	}
	return Decode(data, f.path)
}

// lockRetry bounds how long a writer waits for a competing writer
// before giving up with *LockedError.
const (
	lockAttempts = 20
	lockWait     = 50 * time.Millisecond
)

// Update runs fn inside the exclusive writer section. fn receives the
// freshly loaded index; if it returns nil, the mutated index is
// encoded and atomically replaces the previous file. Any error from fn
// leaves the on-disk index untouched.
func (f *File) Update(fn func(*Index) error) error {
	release, err := f.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	ix, err := f.Load()
	if err != nil {
		return err
	}

	if err := fn(ix); err != nil {
		return err
	}

	data, err := Encode(ix)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(f.path, data, 0644); err != nil {
		return errors.Wrap(err, "writing index")
	}
	return nil
}

// acquireLock creates the lockfile with O_EXCL, retrying briefly when
// another writer holds it. A stale lockfile (crashed writer) must be
// removed by hand; guessing at staleness risks corrupting a live
// writer's section.
func (f *File) acquireLock() (func(), error) {
	for attempt := 0; ; attempt++ {
		fd, err := os.OpenFile(f.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fd.Close()
			return func() {
				if err := os.Remove(f.lockPath); err != nil {
					log.Warnf("index: could not remove lockfile %s: %v", f.lockPath, err)
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "creating index lockfile")
		}
		if attempt >= lockAttempts {
			return nil, &LockedError{LockPath: f.lockPath}
		}
		time.Sleep(lockWait)
	}
}
