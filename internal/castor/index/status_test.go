package index

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

var statusParams = chunker.Params{MinSize: 2 * 1024, AvgSize: 8 * 1024, MaxSize: 32 * 1024}

func statusOpts(root string) StatusOptions {
	return StatusOptions{
		Root:      root,
		Algorithm: chunker.AlgorithmGear,
		Params:    statusParams,
	}
}

// stageFile writes content to root/path and stages a matching entry.
func stageFile(t *testing.T, ix *Index, root, path, content string) *types.IndexEntry {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	stat, _, err := StatFile(abs)
	require.NoError(t, err)

	e := &types.IndexEntry{
		Path:        path,
		Stat:        stat,
		ContentHash: fileHashOf(t, []byte(content)),
		Mode:        0o644,
	}
	ix.Set(e)
	return e
}

func fileHashOf(t *testing.T, data []byte) types.Hash {
	t.Helper()
	chunks, err := chunker.ChunkAll(chunker.AlgorithmGear, statusParams, data, nil)
	require.NoError(t, err)
	refs := make([]types.ChunkRef, len(chunks))
	for i, c := range chunks {
		refs[i] = types.ChunkRef{Hash: c.Hash, Offset: c.Offset, Length: c.Length}
	}
	return hasher.SumFile(refs)
}

func manifestFor(t *testing.T, path string, data []byte) *types.FileManifest {
	t.Helper()
	return &types.FileManifest{Path: path, FileHash: fileHashOf(t, data)}
}

func TestStatusAgainstHead(t *testing.T) {
	root := t.TempDir()
	ix := New()

	stageFile(t, ix, root, "kept.bin", "unchanged content")
	stageFile(t, ix, root, "edited.bin", "new content")
	stageFile(t, ix, root, "added.bin", "brand new")

	headFiles := map[string]*types.FileManifest{
		"kept.bin":    manifestFor(t, "kept.bin", []byte("unchanged content")),
		"edited.bin":  manifestFor(t, "edited.bin", []byte("old content")),
		"removed.bin": manifestFor(t, "removed.bin", []byte("gone now")),
	}

	report, err := ix.Status(headFiles, statusOpts(root))
	require.NoError(t, err)

	assert.Equal(t, []Change{
		{Path: "added.bin", Kind: ChangeAdded},
		{Path: "edited.bin", Kind: ChangeModified},
		{Path: "removed.bin", Kind: ChangeDeleted},
	}, report.Staged)
	assert.Empty(t, report.Worktree)
}

func TestStatusWorktree(t *testing.T) {
	root := t.TempDir()
	ix := New()

	stageFile(t, ix, root, "same.bin", "stable")
	stageFile(t, ix, root, "touched.bin", "will be rewritten")
	stageFile(t, ix, root, "gone.bin", "will be deleted")

	require.NoError(t, os.WriteFile(filepath.Join(root, "touched.bin"), []byte("rewritten content"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "gone.bin")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.bin"), []byte("never staged"), 0o644))

	report, err := ix.Status(nil, statusOpts(root))
	require.NoError(t, err)

	assert.Contains(t, report.Worktree, Change{Path: "touched.bin", Kind: ChangeModified})
	assert.Contains(t, report.Worktree, Change{Path: "gone.bin", Kind: ChangeDeleted})
	assert.NotContains(t, report.Worktree, Change{Path: "same.bin", Kind: ChangeModified})
	assert.Equal(t, []string{"stray.bin"}, report.Untracked)
}

// A rewrite that produces identical bytes must not show as modified
// even though the stat cache misses.
func TestStatusTouchedButIdentical(t *testing.T) {
	root := t.TempDir()
	ix := New()
	stageFile(t, ix, root, "a.bin", "identical bytes")

	// Rewrite with the same content but a bumped mtime.
	abs := filepath.Join(root, "a.bin")
	require.NoError(t, os.WriteFile(abs, []byte("identical bytes"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(abs, future, future))

	report, err := ix.Status(nil, statusOpts(root))
	require.NoError(t, err)
	assert.Empty(t, report.Worktree, "identical content is not a modification")
}

// Paranoid mode must catch a content change hidden behind a restored
// stat cache (same size, same mtime).
func TestStatusParanoid(t *testing.T) {
	root := t.TempDir()
	ix := New()
	e := stageFile(t, ix, root, "sneaky.bin", "original bytes!")

	abs := filepath.Join(root, "sneaky.bin")
	info, err := os.Stat(abs)
	require.NoError(t, err)

	// Same length, different bytes, mtime restored.
	require.NoError(t, os.WriteFile(abs, []byte("tampered bytes!"), 0o644))
	require.NoError(t, os.Chtimes(abs, info.ModTime(), info.ModTime()))

	current, _, err := StatFile(abs)
	require.NoError(t, err)
	require.True(t, Unchanged(e.Stat, current), "test setup: stat cache must look clean")

	t.Run("fast path misses it", func(t *testing.T) {
		report, err := ix.Status(nil, statusOpts(root))
		require.NoError(t, err)
		assert.Empty(t, report.Worktree)
	})

	t.Run("paranoid catches it", func(t *testing.T) {
		opts := statusOpts(root)
		opts.Paranoid = true
		report, err := ix.Status(nil, opts)
		require.NoError(t, err)
		assert.Equal(t, []Change{{Path: "sneaky.bin", Kind: ChangeModified}}, report.Worktree)
	})
}

// A file staged with boundary hints keeps chunk boundaries a plain
// chunking run would not reproduce. Status must judge it by its staged
// chunk ranges, not by re-cutting the file.
func TestStatusWithHintedBoundaries(t *testing.T) {
	root := t.TempDir()
	ix := New()

	data := make([]byte, 64*1024)
	rand.New(rand.NewSource(17)).Read(data)
	abs := filepath.Join(root, "clip.mkv")
	require.NoError(t, os.WriteFile(abs, data, 0o644))

	chunks, err := chunker.ChunkAll(chunker.AlgorithmGear, statusParams, data, []int64{5000})
	require.NoError(t, err)
	require.Equal(t, int64(5000), chunks[0].Length, "test setup: the hint must take")
	refs := make([]types.ChunkRef, len(chunks))
	for i, c := range chunks {
		refs[i] = types.ChunkRef{Hash: c.Hash, Offset: c.Offset, Length: c.Length}
	}

	stat, _, err := StatFile(abs)
	require.NoError(t, err)
	ix.Set(&types.IndexEntry{
		Path:        "clip.mkv",
		Stat:        stat,
		ContentHash: hasher.SumFile(refs),
		Mode:        0o644,
		Chunks:      refs,
	})

	t.Run("paranoid rehash on a clean stat cache", func(t *testing.T) {
		opts := statusOpts(root)
		opts.Paranoid = true
		report, err := ix.Status(nil, opts)
		require.NoError(t, err)
		assert.Empty(t, report.Worktree)
	})

	t.Run("mtime touch with identical bytes", func(t *testing.T) {
		future := time.Now().Add(3 * time.Second)
		require.NoError(t, os.Chtimes(abs, future, future))

		report, err := ix.Status(nil, statusOpts(root))
		require.NoError(t, err)
		assert.Empty(t, report.Worktree)
	})

	t.Run("real edit still detected", func(t *testing.T) {
		data[100]++
		require.NoError(t, os.WriteFile(abs, data, 0o644))

		report, err := ix.Status(nil, statusOpts(root))
		require.NoError(t, err)
		assert.Equal(t, []Change{{Path: "clip.mkv", Kind: ChangeModified}}, report.Worktree)
	})
}

func TestStatusReportsConflicts(t *testing.T) {
	_ = t.TempDir()
	ix := New()
	ix.RecordConflict("clash.bin", nil,
		entry("clash.bin", 0, "ours"),
		entry("clash.bin", 0, "theirs"))

	report, err := ix.Status(nil, StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"clash.bin"}, report.Conflicted)
	assert.Empty(t, report.Staged, "conflict stages are not staged changes")
}
