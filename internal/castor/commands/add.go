// Package commands implements the operations behind the castor CLI.
// Each command opens the repository, drives the core packages, and is
// careful to keep the staging index transactional: a failed operation
// leaves the persisted index exactly as it found it.
package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/object"
	"github.com/castorvc/castor/internal/castor/repo"
	"github.com/castorvc/castor/internal/castor/store"
	"github.com/castorvc/castor/internal/castor/types"
)

// AddOptions configure staging.
type AddOptions struct {
	// Paranoid disables the stat-cache fast path for this invocation,
	// re-chunking every file regardless of its cached stat.
	Paranoid bool

	// Hints maps worktree-relative paths to ascending boundary hints
	// (byte offsets), typically keyframe positions supplied by a
	// format-aware parser. Files without hints chunk generically.
	Hints map[string][]int64
}

// addResult is what one worker produces for one staged file.
type addResult struct {
	relPath  string
	stat     types.StatCache
	mode     uint32
	manifest *types.FileManifest
	err      error
}

// Add stages files. The pipeline per file is chunk, hash, store,
// manifest; the index is mutated once, at the end, inside its
// exclusive writer section, so an error anywhere leaves it unchanged.
func Add(dir string, paths []string, opts AddOptions) error {
	r, err := repo.Open(dir)
	if err != nil {
		return err
	}
	paranoid := opts.Paranoid || r.Config.Index.Paranoid

	files, err := resolveAddPaths(r, paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("nothing to add")
	}

	chunkStore, err := r.OpenStore()
	if err != nil {
		return err
	}
	defer chunkStore.Close()

	objects, err := r.OpenObjects()
	if err != nil {
		return err
	}

	// The pre-loaded index only feeds the stat fast path; the
	// authoritative copy is reloaded under the writer lock below.
	indexFile := r.IndexFile()
	current, err := indexFile.Load()
	if err != nil {
		return err
	}

	results, err := stageFilesConcurrently(r, chunkStore, objects, current, files, paranoid, opts.Hints)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("Nothing changed.")
		return nil
	}

	err = indexFile.Update(func(ix *index.Index) error {
		for _, res := range results {
			// Staging a path settles any conflict recorded for it.
			ix.RemovePath(res.relPath)
			ix.Set(&types.IndexEntry{
				Path:        res.relPath,
				Stat:        res.stat,
				ContentHash: res.manifest.FileHash,
				Mode:        res.mode,
				Stage:       types.StageNormal,
				Chunks:      res.manifest.Chunks,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Staged %d file(s).\n", len(results))
	return nil
}

// resolveAddPaths expands path arguments into worktree files. With no
// arguments the whole worktree is staged.
func resolveAddPaths(r *repo.Repo, paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{r.Root}
	}

	var files []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !r.Ignored(abs) {
				files = append(files, abs)
			}
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path == abs {
				return nil
			}
			if r.Ignored(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// stageFilesConcurrently runs the chunk/hash/store pipeline in a
// worker pool sized to the CPU count. Files whose stat cache proves
// them unchanged are skipped unless paranoid mode is on.
func stageFilesConcurrently(r *repo.Repo, chunkStore store.Store, objects *object.Objects,
	current *index.Index, files []string, paranoid bool, hints map[string][]int64) ([]addResult, error) {

	jobs := make(chan string, len(files))
	out := make(chan addResult, len(files))

	var wg sync.WaitGroup
	for w := 0; w < runtime.NumCPU(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for absPath := range jobs {
				res := stageOne(r, chunkStore, objects, current, absPath, paranoid, hints)
				if res != nil {
					out <- *res
				}
			}
		}()
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(out)

	var results []addResult
	for res := range out {
		if res.err != nil {
			return nil, fmt.Errorf("staging %s: %w", res.relPath, res.err)
		}
		results = append(results, res)
	}
	return results, nil
}

// stageOne processes a single file. Returns nil when the stat fast
// path proves the file unchanged.
func stageOne(r *repo.Repo, chunkStore store.Store, objects *object.Objects,
	current *index.Index, absPath string, paranoid bool, hints map[string][]int64) *addResult {

	rel, err := filepath.Rel(r.Root, absPath)
	if err != nil {
		return &addResult{relPath: absPath, err: err}
	}
	rel = filepath.ToSlash(rel)

	stat, info, err := index.StatFile(absPath)
	if err != nil {
		return &addResult{relPath: rel, err: err}
	}

	if !paranoid {
		if existing := current.Get(rel, types.StageNormal); existing != nil && index.Unchanged(existing.Stat, stat) {
			log.WithField("path", rel).Debug("add: stat cache unchanged, skipping rehash")
			return nil
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return &addResult{relPath: rel, err: err}
	}

	chunks, err := chunker.ChunkAll(r.Config.Chunker.Algorithm, r.Config.Params(), data, hints[rel])
	if err != nil {
		return &addResult{relPath: rel, err: err}
	}

	for _, c := range chunks {
		if err := chunkStore.Put(c.Hash, c.Data); err != nil {
			return &addResult{relPath: rel, err: err}
		}
	}

	manifest := object.BuildManifest(rel, uint32(info.Mode().Perm()), chunks)
	if _, err := objects.PutManifest(manifest); err != nil {
		return &addResult{relPath: rel, err: err}
	}

	return &addResult{
		relPath:  rel,
		stat:     stat,
		mode:     uint32(info.Mode().Perm()),
		manifest: manifest,
	}
}
