package commands

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/object"
	"github.com/castorvc/castor/internal/castor/repo"
	"github.com/castorvc/castor/internal/castor/types"
)

// Commit turns the staged entries into an immutable commit. The order
// of operations is write-then-reference: manifests, trees and the
// commit object land first, chunk reference counts are taken last,
// and HEAD moves only after the references are held. A crash at any
// point leaves either the old state or unreferenced objects that the
// garbage collector reclaims after the grace period.
func Commit(dir, message string) (types.Hash, error) {
	r, err := repo.Open(dir)
	if err != nil {
		return types.Hash{}, err
	}

	chunkStore, err := r.OpenStore()
	if err != nil {
		return types.Hash{}, err
	}
	defer chunkStore.Close()

	objects, err := r.OpenObjects()
	if err != nil {
		return types.Hash{}, err
	}

	var commitHash types.Hash
	err = r.IndexFile().Update(func(ix *index.Index) error {
		if conflicted := ix.Conflicted(); len(conflicted) > 0 {
			return fmt.Errorf("cannot commit with %d unresolved conflict(s), first: %s", len(conflicted), conflicted[0])
		}

		entries := ix.Entries()
		if len(entries) == 0 {
			return fmt.Errorf("nothing staged")
		}

		rootTree, err := buildTrees(objects, entries)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		owner := r.Owner()
		commit := &types.Commit{
			Tree:       rootTree,
			Author:     owner,
			Committer:  owner,
			AuthorTime: now,
			CommitTime: now,
			Message:    message,
		}
		if !ix.Head.IsZero() {
			commit.Parents = []types.Hash{ix.Head}
		}

		commitHash, err = objects.PutCommit(commit)
		if err != nil {
			return err
		}

		// Finalize: take one reference per distinct chunk in the
		// commit's closure. Failure here unwinds the commit object so
		// no half-referenced commit survives.
		chunks, err := objects.WalkChunks(rootTree)
		if err != nil {
			return err
		}
		if err := chunkStore.AddRefs(chunks); err != nil {
			if delErr := objects.DeleteCommit(commitHash); delErr != nil {
				log.WithError(delErr).WithField("commit", commitHash.Short()).
					Warn("could not unwind commit after reference failure")
			}
			return err
		}

		ix.Head = commitHash
		for _, e := range entries {
			ix.ClearUndo(e.Path)
		}
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}

	fmt.Printf("Committed %s\n", commitHash.Short())
	return commitHash, nil
}

// buildTrees writes one tree object per directory, bottom-up, from the
// sorted stage-0 index entries. Manifests are rewritten from the index
// chunk lists; writes are idempotent, so re-committing unchanged
// content re-lands on the same hashes.
func buildTrees(objects *object.Objects, entries []*types.IndexEntry) (types.Hash, error) {
	// Group entries by directory, keyed by child name. Directories
	// materialize implicitly from the entry paths.
	blobs := make(map[string]map[string]types.TreeEntry)
	dirs := make(map[string]bool)
	dirs["."] = true

	addDir := func(d string) {
		for d != "." && !dirs[d] {
			dirs[d] = true
			d = path.Dir(d)
		}
	}

	for _, e := range entries {
		manifest := &types.FileManifest{
			Path:     e.Path,
			Mode:     e.Mode,
			FileHash: e.ContentHash,
			Chunks:   e.Chunks,
		}
		for _, c := range e.Chunks {
			manifest.TotalSize += c.Length
		}
		manifestHash, err := objects.PutManifest(manifest)
		if err != nil {
			return types.Hash{}, err
		}

		dir := path.Dir(e.Path)
		addDir(dir)
		if blobs[dir] == nil {
			blobs[dir] = make(map[string]types.TreeEntry)
		}
		blobs[dir][path.Base(e.Path)] = types.TreeEntry{
			Name: path.Base(e.Path),
			Mode: e.Mode,
			Type: types.EntryBlob,
			Hash: manifestHash,
		}
	}

	// Deepest directories first so every subtree hash exists before
	// its parent references it.
	var order []string
	for d := range dirs {
		order = append(order, d)
	}
	sort.Slice(order, func(i, j int) bool {
		di, dj := treeDepth(order[i]), treeDepth(order[j])
		if di != dj {
			return di > dj
		}
		return order[i] < order[j]
	})

	treeHashes := make(map[string]types.Hash)
	for _, d := range order {
		tree := &types.Tree{}
		for _, te := range blobs[d] {
			tree.Entries = append(tree.Entries, te)
		}
		for sub := range dirs {
			if sub != "." && path.Dir(sub) == d {
				tree.Entries = append(tree.Entries, types.TreeEntry{
					Name: path.Base(sub),
					Type: types.EntryTree,
					Hash: treeHashes[sub],
				})
			}
		}
		hash, err := objects.PutTree(tree)
		if err != nil {
			return types.Hash{}, err
		}
		treeHashes[d] = hash
	}
	return treeHashes["."], nil
}

// treeDepth orders directories so children sort before their parents.
func treeDepth(d string) int {
	if d == "." {
		return 0
	}
	return strings.Count(d, "/") + 1
}
