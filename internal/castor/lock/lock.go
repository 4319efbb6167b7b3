// Package lock implements path-scoped advisory locks for binary files
// that cannot be merged. Lock entries live in the staging index's lock
// extension, so acquisition shares the index's exclusive writer
// section: the expiry check and the insert happen as one atomic step,
// never as a look-then-insert across two operations. Expiry itself is
// a pure is-this-expired-as-of-now check made at the moment of use; a
// periodic sweep only tidies the table.
package lock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/types"
)

// ConflictError reports an unexpired lock already held on the path.
// Expected and recoverable: the caller tells the user who holds the
// lock and when it expires.
type ConflictError struct {
	Existing types.LockEntry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is locked by %s until %s",
		e.Existing.Path, e.Existing.Owner, e.Existing.ExpiresAt.Format(time.RFC3339))
}

// NotOwnerError reports a release attempt by someone other than the
// lock holder.
type NotOwnerError struct {
	Path  string
	Owner string
	Held  string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("lock on %s is held by %s, not %s", e.Path, e.Held, e.Owner)
}

// NotLockedError reports a release on a path with no active lock.
type NotLockedError struct {
	Path string
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("no active lock on %s", e.Path)
}

// Manager mediates lock operations over one repository's index.
type Manager struct {
	file *index.File
	now  func() time.Time
}

// NewManager returns a manager over the given index file. now may be
// nil for the real clock; tests inject their own.
func NewManager(file *index.File, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{file: file, now: now}
}

// Acquire takes a lock on path for duration. If an unexpired lock
// exists the call fails with *ConflictError carrying it. An expired
// entry for the path is displaced, which is what makes expiry
// meaningful without any background process.
func (m *Manager) Acquire(path, owner string, duration time.Duration, reason string) (*types.LockEntry, error) {
	var acquired *types.LockEntry
	err := m.file.Update(func(ix *index.Index) error {
		now := m.now()
		if existing := ix.ActiveLock(path, now); existing != nil {
			return &ConflictError{Existing: *existing}
		}

		// Drop any expired entry for the path before inserting.
		removeLock(ix, path)

		entry := types.LockEntry{
			Path:      path,
			LockID:    uuid.NewString(),
			Owner:     owner,
			Reason:    reason,
			LockedAt:  now,
			ExpiresAt: now.Add(duration),
		}
		ix.Locks = append(ix.Locks, entry)
		acquired = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

// Release removes the caller's lock on path. Fails with *NotOwnerError
// when someone else holds it.
func (m *Manager) Release(path, owner string) error {
	return m.file.Update(func(ix *index.Index) error {
		existing := ix.ActiveLock(path, m.now())
		if existing == nil {
			return &NotLockedError{Path: path}
		}
		if existing.Owner != owner {
			return &NotOwnerError{Path: path, Owner: owner, Held: existing.Owner}
		}
		removeLock(ix, path)
		return nil
	})
}

// ForceRelease removes a lock regardless of owner. The bypass is
// explicit and logged so the override stays auditable.
func (m *Manager) ForceRelease(path, admin string) error {
	return m.file.Update(func(ix *index.Index) error {
		existing := ix.ActiveLock(path, m.now())
		if existing == nil {
			return &NotLockedError{Path: path}
		}
		log.WithFields(log.Fields{
			"path":  path,
			"held":  existing.Owner,
			"admin": admin,
		}).Warn("lock force-released")
		removeLock(ix, path)
		return nil
	})
}

// SweepExpired removes expired entries, making their paths acquirable
// again, and returns how many were swept. Purely an optimization:
// Acquire already ignores expired entries.
func (m *Manager) SweepExpired() (int, error) {
	swept := 0
	err := m.file.Update(func(ix *index.Index) error {
		now := m.now()
		kept := ix.Locks[:0]
		for _, l := range ix.Locks {
			if l.Expired(now) {
				swept++
				continue
			}
			kept = append(kept, l)
		}
		ix.Locks = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// List returns all lock entries, expired ones included so callers can
// display or audit them.
func (m *Manager) List() ([]types.LockEntry, error) {
	ix, err := m.file.Load()
	if err != nil {
		return nil, err
	}
	return append([]types.LockEntry(nil), ix.Locks...), nil
}

func removeLock(ix *index.Index, path string) {
	kept := ix.Locks[:0]
	for _, l := range ix.Locks {
		if l.Path != path {
			kept = append(kept, l)
		}
	}
	ix.Locks = kept
}
