package object_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/object"
	"github.com/castorvc/castor/internal/castor/types"
)

func newObjects(t *testing.T) *object.Objects {
	t.Helper()
	o, err := object.Open(t.TempDir())
	require.NoError(t, err)
	return o
}

func testManifest(path, content string) *types.FileManifest {
	chunk := chunker.Chunk{
		Length: int64(len(content)),
		Data:   []byte(content),
		Hash:   hasher.SumChunk([]byte(content)),
	}
	return object.BuildManifest(path, 0o644, []chunker.Chunk{chunk})
}

func TestManifestRoundtrip(t *testing.T) {
	o := newObjects(t)

	m := testManifest("assets/model.fbx", "binary model data")
	hash, err := o.PutManifest(m)
	require.NoError(t, err)

	got, err := o.GetManifest(hash)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// Storing the same manifest again lands on the same hash.
	again, err := o.PutManifest(m)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestTreeHashIgnoresEntryOrder(t *testing.T) {
	o := newObjects(t)

	a := types.TreeEntry{Name: "a.png", Type: types.EntryBlob, Hash: hasher.SumChunk([]byte("a"))}
	b := types.TreeEntry{Name: "b.png", Type: types.EntryBlob, Hash: hasher.SumChunk([]byte("b"))}

	h1, err := o.PutTree(&types.Tree{Entries: []types.TreeEntry{a, b}})
	require.NoError(t, err)
	h2, err := o.PutTree(&types.Tree{Entries: []types.TreeEntry{b, a}})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "entry order must not change the tree hash")
}

func TestGetMissingObject(t *testing.T) {
	o := newObjects(t)

	_, err := o.GetManifest(hasher.SumObject([]byte("nothing here")))
	var notFound *object.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestReadDetectsCorruptObject(t *testing.T) {
	dir := t.TempDir()
	o, err := object.Open(dir)
	require.NoError(t, err)

	m := testManifest("a.bin", "content")
	hash, err := o.PutManifest(m)
	require.NoError(t, err)

	// Tamper with the stored encoding.
	hex := hash.String()
	path := filepath.Join(dir, "objects", hex[:2], hex+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, ' '), 0o644))

	_, err = o.GetManifest(hash)
	var corrupt *object.CorruptObjectError
	assert.ErrorAs(t, err, &corrupt)
}

func putCommit(t *testing.T, o *object.Objects, tree types.Hash, message string, at time.Time, parents ...types.Hash) types.Hash {
	t.Helper()
	hash, err := o.PutCommit(&types.Commit{
		Tree:       tree,
		Parents:    parents,
		Author:     "tester",
		Committer:  "tester",
		AuthorTime: at,
		CommitTime: at,
		Message:    message,
	})
	require.NoError(t, err)
	return hash
}

func TestListAndFindCommits(t *testing.T) {
	o := newObjects(t)

	tree, err := o.PutTree(&types.Tree{})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := putCommit(t, o, tree, "first", base)
	second := putCommit(t, o, tree, "second", base.Add(time.Hour), first)

	infos, err := o.ListCommits(second)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first, infos[0].Hash, "commits must list oldest first")
	assert.Equal(t, second, infos[1].Hash)

	t.Run("zero head lists nothing", func(t *testing.T) {
		infos, err := o.ListCommits(types.ZeroHash)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("full hash", func(t *testing.T) {
		info, err := o.FindCommit(second, first.String())
		require.NoError(t, err)
		assert.Equal(t, "first", info.Commit.Message)
	})

	t.Run("unique prefix", func(t *testing.T) {
		info, err := o.FindCommit(second, second.String()[:10])
		require.NoError(t, err)
		assert.Equal(t, second, info.Hash)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := o.FindCommit(second, strings.Repeat("f", 12))
		assert.Error(t, err)
	})

	t.Run("ambiguous empty prefix", func(t *testing.T) {
		_, err := o.FindCommit(second, "")
		assert.Error(t, err)
	})

	t.Run("unreachable commit is invisible", func(t *testing.T) {
		stray := putCommit(t, o, tree, "stray", base.Add(2*time.Hour))

		infos, err := o.ListCommits(second)
		require.NoError(t, err)
		assert.Len(t, infos, 2, "a commit outside the parent chain must not be listed")

		_, err = o.FindCommit(second, stray.String())
		assert.Error(t, err)
	})
}

func TestDeleteCommit(t *testing.T) {
	o := newObjects(t)

	tree, err := o.PutTree(&types.Tree{})
	require.NoError(t, err)
	hash := putCommit(t, o, tree, "doomed", time.Now().UTC())

	require.NoError(t, o.DeleteCommit(hash))
	_, err = o.GetCommit(hash)
	var notFound *object.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	// Deleting again is not an error.
	assert.NoError(t, o.DeleteCommit(hash))
}

func TestWalkChunks(t *testing.T) {
	o := newObjects(t)

	shared := testManifest("a/shared.bin", "bytes both files contain")
	other := testManifest("b/other.bin", "distinct bytes")
	duplicate := testManifest("b/copy.bin", "bytes both files contain")

	sharedHash, err := o.PutManifest(shared)
	require.NoError(t, err)
	otherHash, err := o.PutManifest(other)
	require.NoError(t, err)
	dupHash, err := o.PutManifest(duplicate)
	require.NoError(t, err)

	subA, err := o.PutTree(&types.Tree{Entries: []types.TreeEntry{
		{Name: "shared.bin", Type: types.EntryBlob, Hash: sharedHash},
	}})
	require.NoError(t, err)
	subB, err := o.PutTree(&types.Tree{Entries: []types.TreeEntry{
		{Name: "other.bin", Type: types.EntryBlob, Hash: otherHash},
		{Name: "copy.bin", Type: types.EntryBlob, Hash: dupHash},
	}})
	require.NoError(t, err)
	root, err := o.PutTree(&types.Tree{Entries: []types.TreeEntry{
		{Name: "a", Type: types.EntryTree, Hash: subA},
		{Name: "b", Type: types.EntryTree, Hash: subB},
	}})
	require.NoError(t, err)

	chunks, err := o.WalkChunks(root)
	require.NoError(t, err)
	// Two files hold identical bytes, so the universe has two distinct
	// chunks, not three.
	assert.Len(t, chunks, 2)

	manifests, err := o.WalkManifests(root)
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Contains(t, manifests, "a/shared.bin")
	assert.Contains(t, manifests, "b/other.bin")
	assert.Contains(t, manifests, "b/copy.bin")
}

func TestManifestChunkHashes(t *testing.T) {
	hash := hasher.SumChunk([]byte("repeated"))
	m := &types.FileManifest{
		Chunks: []types.ChunkRef{
			{Hash: hash, Offset: 0, Length: 8},
			{Hash: hash, Offset: 8, Length: 8},
		},
	}
	assert.Len(t, object.ManifestChunkHashes(m), 1, "repeated ranges reference one chunk")
}
