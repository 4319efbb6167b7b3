package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// ChangeKind classifies one difference.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one classified path difference.
type Change struct {
	Path string
	Kind ChangeKind
}

// Report is the result of Status: two independent comparisons plus the
// untracked and conflicted path lists. Staged compares the index
// against HEAD's tree; Worktree compares the working directory against
// the index. Every caller reproduces this two-stage model, so the
// index computes both in one pass over its sorted entries.
type Report struct {
	Staged     []Change
	Worktree   []Change
	Untracked  []string
	Conflicted []string
}

// StatusOptions configure the worktree comparison.
type StatusOptions struct {
	// Root is the working tree root; entry paths are relative to it.
	Root string

	// Ignored filters the untracked scan (nil means nothing ignored).
	Ignored func(absPath string) bool

	// Paranoid re-chunks files whose stat cache looks unchanged and
	// compares content hashes, catching stat-equal content changes at
	// the cost of reading every file.
	Paranoid bool

	// Algorithm and Params are the repository chunking configuration,
	// needed only for paranoid re-hashing.
	Algorithm string
	Params    chunker.Params
}

// Status classifies the index against headFiles (path to manifest from
// HEAD's tree; nil or empty for a repository with no commits) and the
// working tree against the index.
func (ix *Index) Status(headFiles map[string]*types.FileManifest, opts StatusOptions) (*Report, error) {
	report := &Report{Conflicted: ix.Conflicted()}

	// Index vs. HEAD.
	seen := make(map[string]bool, ix.Len())
	for _, e := range ix.entries {
		if e.Stage != types.StageNormal {
			continue
		}
		seen[e.Path] = true
		head, ok := headFiles[e.Path]
		switch {
		case !ok:
			report.Staged = append(report.Staged, Change{Path: e.Path, Kind: ChangeAdded})
		case head.FileHash != e.ContentHash:
			report.Staged = append(report.Staged, Change{Path: e.Path, Kind: ChangeModified})
		}
	}
	for path := range headFiles {
		if !seen[path] && len(ix.EntriesForPath(path)) == 0 {
			report.Staged = append(report.Staged, Change{Path: path, Kind: ChangeDeleted})
		}
	}
	sort.Slice(report.Staged, func(i, j int) bool { return report.Staged[i].Path < report.Staged[j].Path })

	// Worktree vs. index.
	for _, e := range ix.entries {
		if e.Stage != types.StageNormal {
			continue
		}
		abs := filepath.Join(opts.Root, filepath.FromSlash(e.Path))
		current, _, err := StatFile(abs)
		if os.IsNotExist(err) {
			report.Worktree = append(report.Worktree, Change{Path: e.Path, Kind: ChangeDeleted})
			continue
		}
		if err != nil {
			return nil, err
		}

		if Unchanged(e.Stat, current) {
			if !opts.Paranoid {
				continue
			}
			changed, err := contentChanged(abs, e, opts)
			if err != nil {
				return nil, err
			}
			if changed {
				log.WithField("path", e.Path).Warn("status: content changed under an unchanged stat cache")
				report.Worktree = append(report.Worktree, Change{Path: e.Path, Kind: ChangeModified})
			}
			continue
		}

		// The stat cache differs; confirm via content before reporting
		// a touched-but-identical file as modified.
		changed, err := contentChanged(abs, e, opts)
		if err != nil {
			return nil, err
		}
		if changed {
			report.Worktree = append(report.Worktree, Change{Path: e.Path, Kind: ChangeModified})
		}
	}

	// Untracked scan.
	untracked, err := ix.findUntracked(opts)
	if err != nil {
		return nil, err
	}
	report.Untracked = untracked

	return report, nil
}

// contentChanged rehashes the file against the entry's staged chunk
// structure. Comparing per stored range keeps the verdict independent
// of how a fresh chunking run would cut the file, which matters for
// entries staged with boundary hints.
func contentChanged(absPath string, e *types.IndexEntry, opts StatusOptions) (bool, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, err
	}
	if len(e.Chunks) > 0 {
		var total int64
		for _, ref := range e.Chunks {
			total += ref.Length
		}
		if total != int64(len(data)) {
			return true, nil
		}
		for _, ref := range e.Chunks {
			if ref.Offset < 0 || ref.Offset+ref.Length > int64(len(data)) {
				return true, nil
			}
			if hasher.SumChunk(data[ref.Offset:ref.Offset+ref.Length]) != ref.Hash {
				return true, nil
			}
		}
		return false, nil
	}

	// No staged chunk list (e.g. a stage recorded from a tree): fall
	// back to re-chunking with the repository parameters.
	chunks, err := chunker.ChunkAll(opts.Algorithm, opts.Params, data, nil)
	if err != nil {
		return false, err
	}
	refs := make([]types.ChunkRef, len(chunks))
	for i, c := range chunks {
		refs[i] = types.ChunkRef{Hash: c.Hash, Offset: c.Offset, Length: c.Length}
	}
	return hasher.SumFile(refs) != e.ContentHash, nil
}

func (ix *Index) findUntracked(opts StatusOptions) ([]string, error) {
	if opts.Root == "" {
		return nil, nil
	}
	var untracked []string
	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == opts.Root {
			return nil
		}
		if opts.Ignored != nil && opts.Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(opts.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(ix.EntriesForPath(rel)) == 0 {
			untracked = append(untracked, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return untracked, nil
}
