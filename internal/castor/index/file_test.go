package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/types"
)

func tempIndexFile(t *testing.T) *File {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "index"))
}

func TestLoadMissingFileIsEmptyIndex(t *testing.T) {
	f := tempIndexFile(t)
	ix, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestUpdatePersists(t *testing.T) {
	f := tempIndexFile(t)

	err := f.Update(func(ix *Index) error {
		ix.Set(entry("a.bin", types.StageNormal, "a"))
		return nil
	})
	require.NoError(t, err)

	ix, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())

	// The lockfile is gone after the section ends.
	_, err = os.Stat(f.path + ".lock")
	assert.True(t, os.IsNotExist(err))
}

func TestFailedUpdateLeavesFileUntouched(t *testing.T) {
	f := tempIndexFile(t)
	require.NoError(t, f.Update(func(ix *Index) error {
		ix.Set(entry("keep.bin", types.StageNormal, "keep"))
		return nil
	}))

	err := f.Update(func(ix *Index) error {
		ix.Set(entry("discard.bin", types.StageNormal, "discard"))
		return fmt.Errorf("something went wrong mid-mutation")
	})
	require.Error(t, err)

	ix, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())
	assert.NotNil(t, ix.Get("keep.bin", types.StageNormal))
	assert.Nil(t, ix.Get("discard.bin", types.StageNormal))
}

func TestUpdateReloadsInsideLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")

	// Two handles to the same file, as two processes would have.
	first := NewFile(path)
	second := NewFile(path)

	require.NoError(t, first.Update(func(ix *Index) error {
		ix.Set(entry("a.bin", types.StageNormal, "a"))
		return nil
	}))
	require.NoError(t, second.Update(func(ix *Index) error {
		// The other handle's write must be visible here.
		if ix.Get("a.bin", types.StageNormal) == nil {
			return fmt.Errorf("stale index inside writer section")
		}
		ix.Set(entry("b.bin", types.StageNormal, "b"))
		return nil
	}))

	ix, err := first.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	f := tempIndexFile(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := f.Update(func(ix *Index) error {
				ix.Set(entry(fmt.Sprintf("file-%d.bin", n), types.StageNormal, fmt.Sprintf("%d", n)))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ix, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, writers, ix.Len(), "every serialized update must survive")
}

func TestHeldLockfileBlocksWriters(t *testing.T) {
	f := tempIndexFile(t)
	require.NoError(t, os.WriteFile(f.path+".lock", nil, 0o644))

	err := f.Update(func(ix *Index) error { return nil })
	var locked *LockedError
	assert.ErrorAs(t, err, &locked)
}
