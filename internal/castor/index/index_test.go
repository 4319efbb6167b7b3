package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

func entry(path string, stage types.Stage, content string) *types.IndexEntry {
	return &types.IndexEntry{
		Path:        path,
		Stage:       stage,
		ContentHash: hasher.SumChunk([]byte(content)),
		Mode:        0o644,
		Stat:        types.StatCache{Size: int64(len(content)), MtimeSec: 1700000000},
	}
}

func TestSetKeepsEntriesSorted(t *testing.T) {
	ix := New()
	ix.Set(entry("b.dat", types.StageNormal, "b"))
	ix.Set(entry("a.dat", types.StageNormal, "a"))
	ix.Set(entry("c/d.dat", types.StageNormal, "d"))

	var paths []string
	for _, e := range ix.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"a.dat", "b.dat", "c/d.dat"}, paths)

	// Re-setting a path replaces instead of duplicating.
	ix.Set(entry("b.dat", types.StageNormal, "b2"))
	assert.Equal(t, 3, ix.Len())
	assert.Equal(t, hasher.SumChunk([]byte("b2")), ix.Get("b.dat", types.StageNormal).ContentHash)
}

func TestGetAndRemove(t *testing.T) {
	ix := New()
	ix.Set(entry("a.dat", types.StageNormal, "a"))

	assert.NotNil(t, ix.Get("a.dat", types.StageNormal))
	assert.Nil(t, ix.Get("a.dat", types.StageOurs))
	assert.Nil(t, ix.Get("missing", types.StageNormal))

	assert.True(t, ix.Remove("a.dat", types.StageNormal))
	assert.False(t, ix.Remove("a.dat", types.StageNormal))
	assert.Equal(t, 0, ix.Len())
}

func TestConflictLifecycle(t *testing.T) {
	ix := New()
	ix.Set(entry("tex.png", types.StageNormal, "base"))

	ancestor := entry("tex.png", types.StageNormal, "base")
	ours := entry("tex.png", types.StageNormal, "ours")
	theirs := entry("tex.png", types.StageNormal, "theirs")
	ix.RecordConflict("tex.png", ancestor, ours, theirs)

	assert.Equal(t, []string{"tex.png"}, ix.Conflicted())
	assert.Nil(t, ix.Get("tex.png", types.StageNormal), "conflict displaces the stage-0 entry")
	require.Len(t, ix.EntriesForPath("tex.png"), 3)

	t.Run("resolve ours", func(t *testing.T) {
		resolved, err := ix.ResolveConflict("tex.png", ResolveOurs, nil)
		require.NoError(t, err)
		assert.Equal(t, types.StageNormal, resolved.Stage)
		assert.Equal(t, ours.ContentHash, resolved.ContentHash)
		assert.Empty(t, ix.Conflicted())
		assert.Equal(t, 1, ix.Len())
	})

	t.Run("undo restores the conflict stages", func(t *testing.T) {
		require.True(t, ix.UndoResolution("tex.png"))
		assert.Equal(t, []string{"tex.png"}, ix.Conflicted())
		assert.Len(t, ix.EntriesForPath("tex.png"), 3)

		// The undo record is consumed.
		assert.False(t, ix.UndoResolution("tex.png"))
	})

	t.Run("resolve theirs after undo", func(t *testing.T) {
		resolved, err := ix.ResolveConflict("tex.png", ResolveTheirs, nil)
		require.NoError(t, err)
		assert.Equal(t, theirs.ContentHash, resolved.ContentHash)
	})
}

func TestResolveMissingSide(t *testing.T) {
	ix := New()
	// add/add conflict: no ancestor stage.
	ix.RecordConflict("new.bin", nil, entry("new.bin", 0, "ours"), entry("new.bin", 0, "theirs"))

	_, err := ix.ResolveConflict("other.bin", ResolveOurs, nil)
	var noSide *NoConflictSideError
	assert.ErrorAs(t, err, &noSide)

	_, err = ix.ResolveConflict("new.bin", ResolveExplicit, nil)
	assert.ErrorAs(t, err, &noSide, "explicit resolution requires an entry")

	merged := entry("new.bin", types.StageNormal, "merged by hand")
	resolved, err := ix.ResolveConflict("new.bin", ResolveExplicit, merged)
	require.NoError(t, err)
	assert.Equal(t, merged.ContentHash, resolved.ContentHash)
	assert.Empty(t, ix.Conflicted())
}

func TestActiveLock(t *testing.T) {
	now := time.Now()
	ix := New()
	ix.Locks = []types.LockEntry{
		{Path: "a.bin", Owner: "alice", ExpiresAt: now.Add(time.Hour)},
		{Path: "b.bin", Owner: "bob", ExpiresAt: now.Add(-time.Minute)},
	}

	assert.NotNil(t, ix.ActiveLock("a.bin", now))
	assert.Nil(t, ix.ActiveLock("b.bin", now), "expired locks are not active")
	assert.Nil(t, ix.ActiveLock("c.bin", now))

	// Expiry is evaluated against the supplied clock, nothing else.
	assert.Nil(t, ix.ActiveLock("a.bin", now.Add(2*time.Hour)))
}
