// Package index implements the persisted staging index: the mutable
// bridge between the working tree and the next commit. Entries are
// kept sorted by (path, stage) so lookups are binary searches and
// merges against a tree walk in one pass. The on-disk format is a
// binary header + entry table + tagged extension blocks + a trailing
// content hash; see format.go.
package index

import (
	"sort"
	"time"

	"github.com/castorvc/castor/internal/castor/types"
)

// Index is the in-memory form of the staging index. It is not
// goroutine-safe: readers load their own copy, and writers mutate
// inside the exclusive section File.Update provides.
type Index struct {
	// Head is the commit the index was last synchronized with.
	Head types.Hash

	// Flags is reserved header state carried across load/save.
	Flags uint32

	entries []*types.IndexEntry

	// Locks is the lock table, persisted in the LOCK extension.
	Locks []types.LockEntry

	// resolveUndo remembers the staged entries a conflict displaced,
	// keyed by path, so a resolution can be reverted.
	resolveUndo map[string][]types.IndexEntry
}

// New returns an empty index.
func New() *Index {
	return &Index{resolveUndo: make(map[string][]types.IndexEntry)}
}

// Len returns the number of entries across all stages.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries returns the sorted entry slice. Callers must not reorder it.
func (ix *Index) Entries() []*types.IndexEntry { return ix.entries }

// search returns the insertion position for (path, stage).
func (ix *Index) search(path string, stage types.Stage) int {
	return sort.Search(len(ix.entries), func(i int) bool {
		e := ix.entries[i]
		if e.Path != path {
			return e.Path > path
		}
		return e.Stage >= stage
	})
}

// Get returns the entry at (path, stage), or nil.
func (ix *Index) Get(path string, stage types.Stage) *types.IndexEntry {
	i := ix.search(path, stage)
	if i < len(ix.entries) && ix.entries[i].Path == path && ix.entries[i].Stage == stage {
		return ix.entries[i]
	}
	return nil
}

// EntriesForPath returns every entry for path, across stages.
func (ix *Index) EntriesForPath(path string) []*types.IndexEntry {
	i := ix.search(path, 0)
	var out []*types.IndexEntry
	for ; i < len(ix.entries) && ix.entries[i].Path == path; i++ {
		out = append(out, ix.entries[i])
	}
	return out
}

// Set inserts or replaces the entry at its (path, stage) slot,
// preserving the sort order and the one-entry-per-slot invariant.
func (ix *Index) Set(entry *types.IndexEntry) {
	i := ix.search(entry.Path, entry.Stage)
	if i < len(ix.entries) && ix.entries[i].Path == entry.Path && ix.entries[i].Stage == entry.Stage {
		ix.entries[i] = entry
		return
	}
	ix.entries = append(ix.entries, nil)
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = entry
}

// Remove deletes the entry at (path, stage) and reports whether one
// existed.
func (ix *Index) Remove(path string, stage types.Stage) bool {
	i := ix.search(path, stage)
	if i >= len(ix.entries) || ix.entries[i].Path != path || ix.entries[i].Stage != stage {
		return false
	}
	ix.entries = append(ix.entries[:i], ix.entries[i+1:]...)
	return true
}

// RemovePath deletes all entries for path, at every stage, returning
// how many were removed.
func (ix *Index) RemovePath(path string) int {
	i := ix.search(path, 0)
	j := i
	for j < len(ix.entries) && ix.entries[j].Path == path {
		j++
	}
	removed := j - i
	ix.entries = append(ix.entries[:i], ix.entries[j:]...)
	return removed
}

// RecordConflict replaces any stage-0 entry for path with the conflict
// stages. Any of ancestor/ours/theirs may be nil (e.g. an add/add
// conflict has no ancestor).
func (ix *Index) RecordConflict(path string, ancestor, ours, theirs *types.IndexEntry) {
	ix.RemovePath(path)
	for stage, e := range map[types.Stage]*types.IndexEntry{
		types.StageAncestor: ancestor,
		types.StageOurs:     ours,
		types.StageTheirs:   theirs,
	} {
		if e == nil {
			continue
		}
		staged := *e
		staged.Path = path
		staged.Stage = stage
		ix.Set(&staged)
	}
}

// Resolution selects which side settles a conflict.
type Resolution int

const (
	ResolveOurs Resolution = iota
	ResolveTheirs
	// ResolveExplicit replaces the conflict with caller-provided
	// content (a re-staged merged file).
	ResolveExplicit
)

// ResolveConflict collapses the staged conflict for path into a single
// stage-0 entry. For ResolveExplicit, explicit must be non-nil. The
// conflict counts as resolved only once no stage>0 entries remain,
// which this guarantees by removing every stage first. The displaced
// conflict stages are recorded so UndoResolution can bring the
// conflict back.
func (ix *Index) ResolveConflict(path string, how Resolution, explicit *types.IndexEntry) (*types.IndexEntry, error) {
	var chosen *types.IndexEntry
	switch how {
	case ResolveOurs:
		chosen = ix.Get(path, types.StageOurs)
	case ResolveTheirs:
		chosen = ix.Get(path, types.StageTheirs)
	case ResolveExplicit:
		chosen = explicit
	}
	if chosen == nil {
		return nil, &NoConflictSideError{Path: path, How: how}
	}

	var displaced []types.IndexEntry
	for _, e := range ix.EntriesForPath(path) {
		if e.Stage != types.StageNormal {
			displaced = append(displaced, *e)
		}
	}
	if len(displaced) > 0 {
		ix.resolveUndo[path] = displaced
	}

	resolved := *chosen
	resolved.Path = path
	resolved.Stage = types.StageNormal

	ix.RemovePath(path)
	ix.Set(&resolved)
	return &resolved, nil
}

// UndoResolution restores the conflict stages a resolution displaced
// and removes whatever currently occupies the path. Returns false when
// no undo state exists for path.
func (ix *Index) UndoResolution(path string) bool {
	saved, ok := ix.resolveUndo[path]
	if !ok {
		return false
	}
	ix.RemovePath(path)
	for i := range saved {
		e := saved[i]
		ix.Set(&e)
	}
	delete(ix.resolveUndo, path)
	return true
}

// ClearUndo drops the resolve-undo record for path (called when the
// resolution is accepted by a commit).
func (ix *Index) ClearUndo(path string) {
	delete(ix.resolveUndo, path)
}

// Conflicted returns the paths that still have stage>0 entries.
func (ix *Index) Conflicted() []string {
	var paths []string
	var last string
	for _, e := range ix.entries {
		if e.Stage != types.StageNormal && e.Path != last {
			paths = append(paths, e.Path)
			last = e.Path
		}
	}
	return paths
}

// ActiveLock returns the unexpired lock on path as of now, or nil.
// Expired entries are ignored but not removed; the lock manager's
// sweep does that.
func (ix *Index) ActiveLock(path string, now time.Time) *types.LockEntry {
	for i := range ix.Locks {
		if ix.Locks[i].Path == path && !ix.Locks[i].Expired(now) {
			return &ix.Locks[i]
		}
	}
	return nil
}
