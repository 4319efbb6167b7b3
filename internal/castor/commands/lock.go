package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/castorvc/castor/internal/castor/repo"
)

// Lock takes an advisory exclusive lock on a worktree path.
func Lock(dir, path string, duration time.Duration, reason string) error {
	r, rel, err := openWithRel(dir, path)
	if err != nil {
		return err
	}

	entry, err := r.Locks().Acquire(rel, r.Owner(), duration, reason)
	if err != nil {
		return err
	}
	fmt.Printf("Locked %s until %s (lock %s)\n",
		entry.Path, entry.ExpiresAt.Local().Format(time.RFC3339), entry.LockID)
	return nil
}

// Unlock releases a lock. With force set the caller need not be the
// owner; the override is logged for audit.
func Unlock(dir, path string, force bool) error {
	r, rel, err := openWithRel(dir, path)
	if err != nil {
		return err
	}

	if force {
		if err := r.Locks().ForceRelease(rel, r.Owner()); err != nil {
			return err
		}
	} else {
		if err := r.Locks().Release(rel, r.Owner()); err != nil {
			return err
		}
	}
	fmt.Printf("Unlocked %s\n", rel)
	return nil
}

// ListLocks prints the lock table, marking expired entries.
func ListLocks(dir string) error {
	r, err := repo.Open(dir)
	if err != nil {
		return err
	}

	locks, err := r.Locks().List()
	if err != nil {
		return err
	}
	if len(locks) == 0 {
		fmt.Println("No locks held.")
		return nil
	}

	now := time.Now()
	for _, l := range locks {
		state := "held"
		if l.Expired(now) {
			state = "expired"
		}
		fmt.Printf("%-8s %s  owner=%s  expires=%s", state, l.Path, l.Owner,
			l.ExpiresAt.Local().Format(time.RFC3339))
		if l.Reason != "" {
			fmt.Printf("  (%s)", l.Reason)
		}
		fmt.Println()
	}
	return nil
}

// openWithRel opens the repository containing dir and converts a path
// argument to the repository-relative slashed form locks are keyed by.
func openWithRel(dir, path string) (*repo.Repo, string, error) {
	r, err := repo.Open(dir)
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	rel, err := filepath.Rel(r.Root, abs)
	if err != nil {
		return nil, "", err
	}
	return r, filepath.ToSlash(rel), nil
}
