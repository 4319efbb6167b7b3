package lock_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/lock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T) (*lock.Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	file := index.NewFile(filepath.Join(t.TempDir(), "index"))
	return lock.NewManager(file, clock.Now), clock
}

func TestAcquireAndRelease(t *testing.T) {
	m, _ := newManager(t)

	entry, err := m.Acquire("assets/hero.psd", "alice", time.Hour, "repainting")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Owner)
	assert.NotEmpty(t, entry.LockID)
	assert.Equal(t, "repainting", entry.Reason)

	require.NoError(t, m.Release("assets/hero.psd", "alice"))

	// Released, so anyone can take it.
	_, err = m.Acquire("assets/hero.psd", "bob", time.Hour, "")
	assert.NoError(t, err)
}

func TestAcquireConflicts(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Acquire("scene.blend", "alice", time.Hour, "")
	require.NoError(t, err)

	_, err = m.Acquire("scene.blend", "bob", time.Hour, "")
	var conflict *lock.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice", conflict.Existing.Owner)

	// Different paths do not conflict.
	_, err = m.Acquire("other.blend", "bob", time.Hour, "")
	assert.NoError(t, err)
}

func TestExpiredLockIsAcquirable(t *testing.T) {
	m, clock := newManager(t)

	_, err := m.Acquire("video.mov", "alice", time.Hour, "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// No sweep ran; expiry is checked at the moment of acquisition.
	entry, err := m.Acquire("video.mov", "bob", time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", entry.Owner)

	locks, err := m.List()
	require.NoError(t, err)
	require.Len(t, locks, 1, "the expired entry is displaced, not duplicated")
	assert.Equal(t, "bob", locks[0].Owner)
}

func TestReleaseErrors(t *testing.T) {
	m, _ := newManager(t)

	var notLocked *lock.NotLockedError
	assert.ErrorAs(t, m.Release("free.bin", "alice"), &notLocked)

	_, err := m.Acquire("held.bin", "alice", time.Hour, "")
	require.NoError(t, err)

	err = m.Release("held.bin", "mallory")
	var notOwner *lock.NotOwnerError
	require.ErrorAs(t, err, &notOwner)
	assert.Equal(t, "alice", notOwner.Held)

	// The failed release left the lock in place.
	locks, err := m.List()
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}

func TestForceRelease(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Acquire("stuck.bin", "alice", 100*time.Hour, "")
	require.NoError(t, err)

	require.NoError(t, m.ForceRelease("stuck.bin", "admin"))

	_, err = m.Acquire("stuck.bin", "bob", time.Hour, "")
	assert.NoError(t, err)

	var notLocked *lock.NotLockedError
	assert.ErrorAs(t, m.ForceRelease("missing.bin", "admin"), &notLocked)
}

func TestSweepExpired(t *testing.T) {
	m, clock := newManager(t)

	_, err := m.Acquire("short.bin", "alice", time.Minute, "")
	require.NoError(t, err)
	_, err = m.Acquire("long.bin", "alice", time.Hour, "")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	swept, err := m.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	locks, err := m.List()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "long.bin", locks[0].Path)
}

// Concurrent acquisition of the same path must grant exactly one lock:
// the expiry check and the insert are a single atomic step inside the
// index writer section.
func TestConcurrentAcquireGrantsOne(t *testing.T) {
	m, _ := newManager(t)

	const contenders = 8
	granted := make(chan string, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			owner := string(rune('a' + n))
			if _, err := m.Acquire("contested.bin", owner, time.Hour, ""); err == nil {
				granted <- owner
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var winners []string
	for w := range granted {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one contender may win")

	locks, err := m.List()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, winners[0], locks[0].Owner)
}
