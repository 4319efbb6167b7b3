package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/repo"
	"github.com/castorvc/castor/internal/castor/types"
)

// Resolve settles a conflicted path in favor of one side and rewrites
// the worktree file to match the chosen content. The displaced
// conflict stages stay recorded so the resolution can be undone.
func Resolve(dir, path string, how index.Resolution) error {
	r, rel, err := openWithRel(dir, path)
	if err != nil {
		return err
	}

	var chosen *types.IndexEntry
	err = r.IndexFile().Update(func(ix *index.Index) error {
		chosen, err = ix.ResolveConflict(rel, how, nil)
		return err
	})
	if err != nil {
		return err
	}

	if err := materializeEntry(r, chosen); err != nil {
		return err
	}
	fmt.Printf("Resolved %s\n", rel)
	return nil
}

// ResolveUndo restores the conflict stages a prior resolution
// replaced.
func ResolveUndo(dir, path string) error {
	r, rel, err := openWithRel(dir, path)
	if err != nil {
		return err
	}

	err = r.IndexFile().Update(func(ix *index.Index) error {
		if !ix.UndoResolution(rel) {
			return fmt.Errorf("no recorded resolution for %s", rel)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("Restored conflict stages for %s\n", rel)
	return nil
}

// materializeEntry writes an index entry's content into the worktree.
// Entries recorded without chunk lists cannot be materialized; the
// index resolution still stands.
func materializeEntry(r *repo.Repo, e *types.IndexEntry) error {
	if len(e.Chunks) == 0 {
		log.WithField("path", e.Path).Warn("resolution has no chunk list, worktree file left as is")
		return nil
	}

	chunkStore, err := r.OpenStore()
	if err != nil {
		return err
	}
	defer chunkStore.Close()

	var data []byte
	for _, ref := range e.Chunks {
		chunk, err := chunkStore.Get(ref.Hash)
		if err != nil {
			return err
		}
		data = append(data, chunk...)
	}

	target := filepath.Join(r.Root, filepath.FromSlash(e.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	mode := os.FileMode(e.Mode)
	if mode == 0 {
		mode = 0o644
	}
	return renameio.WriteFile(target, data, mode)
}
