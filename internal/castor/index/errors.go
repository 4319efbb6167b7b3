package index

import "fmt"

// CorruptError means the index file failed a structural or checksum
// check on load. The index refuses to load; recovery is an explicit
// rebuild from HEAD, never a silent partial parse.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt index %s: %s", e.Path, e.Reason)
}

// LockedError means another writer holds the index lockfile.
type LockedError struct {
	LockPath string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("index is locked by another process (%s exists)", e.LockPath)
}

// NoConflictSideError means a resolution named a side the conflict
// does not have (e.g. --ours on a path whose ours stage is absent).
type NoConflictSideError struct {
	Path string
	How  Resolution
}

func (e *NoConflictSideError) Error() string {
	side := "explicit"
	switch e.How {
	case ResolveOurs:
		side = "ours"
	case ResolveTheirs:
		side = "theirs"
	}
	return fmt.Sprintf("no %q side to resolve for %s", side, e.Path)
}
