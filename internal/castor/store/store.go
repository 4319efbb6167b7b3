// Package store implements the deduplicating, reference-counted chunk
// store. Chunks are addressed by their content hash: any two Put calls
// with the same hash result in exactly one physical write, no matter
// how many files or commits reference the chunk. Reference counts are
// owned by the store and only change through AddRef/RemoveRef; garbage
// collection removes chunks whose count has been zero for longer than
// a grace period.
package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// Store is the chunk store contract. Implementations must make
// operations on a given hash linearizable; operations on different
// hashes must not corrupt each other.
type Store interface {
	// Put persists a chunk. Idempotent: a repeated hash is a no-op
	// beyond a size cross-check, which surfaces hash collisions as
	// *HashCollisionError instead of silently overwriting. New records
	// start with RefCount 0; callers add references separately, so a
	// crash between write and reference leaves an unreferenced chunk
	// for GC, never a referenced hole.
	Put(hash types.Hash, data []byte) error

	// Get reads a chunk and verifies its bytes against the hash,
	// returning *CorruptChunkError on mismatch.
	Get(hash types.Hash) ([]byte, error)

	Has(hash types.Hash) (bool, error)

	// AddRef / RemoveRef adjust one chunk's reference count.
	// Decrementing past zero fails with *RefCountUnderflowError. The
	// batch forms persist the record table once per call, which is
	// what commit finalization uses.
	AddRef(hash types.Hash) error
	RemoveRef(hash types.Hash) error
	AddRefs(hashes []types.Hash) error
	RemoveRefs(hashes []types.Hash) error

	// Record returns a copy of the chunk's metadata record.
	Record(hash types.Hash) (types.ChunkRecord, error)

	// Relocate moves a chunk's physical bytes to another tier without
	// changing its hash, reference count, or any manifest.
	Relocate(hash types.Hash, tier types.StorageTier) error

	// CollectGarbage deletes chunks whose RefCount has been zero for
	// at least grace. Never runs concurrently with itself.
	CollectGarbage(grace time.Duration) (deleted int, err error)

	Stats() Stats
	Close() error
}

// Stats summarizes the store's contents.
type Stats struct {
	Chunks         int
	TotalBytes     int64
	StoredBytes    int64
	ZeroRefChunks  int
	PhysicalWrites int64
}

// Options configure an FSStore.
type Options struct {
	// Codec is the compression attempted on new chunks. Incompressible
	// chunks fall back to raw storage. Empty means no compression.
	Codec types.CompressionCodec

	// DefaultTier is where new chunks land. Tier placement policy
	// beyond the default is driven externally via Relocate.
	DefaultTier types.StorageTier

	// Now overrides the clock, for GC grace-period tests.
	Now func() time.Time
}

// FSStore is the filesystem-backed Store. One backend per tier, all
// rooted under the store directory; the record table is persisted
// beside them.
type FSStore struct {
	mu        sync.Mutex
	root      string
	table     *recordTable
	backends  map[types.StorageTier]Backend
	codec     types.CompressionCodec
	tier      types.StorageTier
	now       func() time.Time
	writes    int64
	gcRunning bool
}

// NewFSStore opens (or initializes) a chunk store rooted at dir.
func NewFSStore(dir string, opts Options) (*FSStore, error) {
	table, err := loadRecordTable(filepath.Join(dir, "records"))
	if err != nil {
		return nil, err
	}

	s := &FSStore{
		root:     dir,
		table:    table,
		backends: make(map[types.StorageTier]Backend),
		codec:    opts.Codec,
		tier:     opts.DefaultTier,
		now:      opts.Now,
	}
	if s.tier == "" {
		s.tier = types.TierHot
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// backend returns the backend for a tier, creating it on first use.
// Must be called with the store mutex held.
func (s *FSStore) backend(tier types.StorageTier) (Backend, error) {
	if b, ok := s.backends[tier]; ok {
		return b, nil
	}
	b, err := NewFSBackend("local-"+string(tier), filepath.Join(s.root, "chunks", string(tier)))
	if err != nil {
		return nil, err
	}
	s.backends[tier] = b
	return b, nil
}

// keyFor derives the backend storage key from a hash: two fan-out
// levels of two hex characters each keep directory sizes reasonable
// for millions of chunks.
func keyFor(hash types.Hash) string {
	hex := hash.String()
	return hex[:2] + "/" + hex[2:4] + "/" + hex
}

func (s *FSStore) Put(hash types.Hash, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.table.get(hash); ok {
		if rec.Size != int64(len(data)) {
			return &HashCollisionError{Hash: hash, ExistingSize: rec.Size, NewSize: int64(len(data))}
		}
		// Dedup hit: the bytes are already stored.
		return nil
	}

	stored, codec, err := compress(data, s.codec)
	if err != nil {
		return err
	}

	b, err := s.backend(s.tier)
	if err != nil {
		return err
	}
	key := keyFor(hash)
	if err := b.Write(key, stored); err != nil {
		return err
	}
	s.writes++

	// Record creation comes after the successful write: the chunk is
	// referenceable only once its bytes are durable.
	now := s.now()
	s.table.put(&types.ChunkRecord{
		Hash:           hash,
		Size:           int64(len(data)),
		CompressedSize: int64(len(stored)),
		Codec:          codec,
		BackendID:      b.ID(),
		StorageKey:     key,
		Tier:           s.tier,
		RefCount:       0,
		LastAccessed:   now,
		ZeroSince:      now,
	})
	return s.table.save()
}

func (s *FSStore) Get(hash types.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table.get(hash)
	if !ok {
		return nil, &ChunkMissingError{Hash: hash}
	}

	b, err := s.backend(rec.Tier)
	if err != nil {
		return nil, err
	}
	stored, err := b.Read(rec.StorageKey)
	if err != nil {
		return nil, err
	}

	data, err := decompress(stored, rec.Codec, rec.Size)
	if err != nil {
		return nil, &CorruptChunkError{Hash: hash, Actual: types.ZeroHash}
	}
	if actual := hasher.SumChunk(data); actual != hash {
		return nil, &CorruptChunkError{Hash: hash, Actual: actual}
	}

	rec.LastAccessed = s.now()
	return data, nil
}

func (s *FSStore) Has(hash types.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.table.get(hash)
	return ok, nil
}

func (s *FSStore) AddRef(hash types.Hash) error {
	return s.AddRefs([]types.Hash{hash})
}

func (s *FSStore) RemoveRef(hash types.Hash) error {
	return s.RemoveRefs([]types.Hash{hash})
}

func (s *FSStore) AddRefs(hashes []types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating so a missing hash
	// cannot leave a partially applied increment behind.
	for _, hash := range hashes {
		if _, ok := s.table.get(hash); !ok {
			return &ChunkMissingError{Hash: hash}
		}
	}
	for _, hash := range hashes {
		rec, _ := s.table.get(hash)
		rec.RefCount++
		rec.ZeroSince = time.Time{}
	}
	return s.table.save()
}

func (s *FSStore) RemoveRefs(hashes []types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, hash := range hashes {
		rec, ok := s.table.get(hash)
		if !ok {
			return &ChunkMissingError{Hash: hash}
		}
		if rec.RefCount <= 0 {
			return &RefCountUnderflowError{Hash: hash}
		}
	}
	for _, hash := range hashes {
		rec, _ := s.table.get(hash)
		rec.RefCount--
		if rec.RefCount == 0 {
			rec.ZeroSince = now
		}
	}
	return s.table.save()
}

func (s *FSStore) Record(hash types.Hash) (types.ChunkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table.get(hash)
	if !ok {
		return types.ChunkRecord{}, &ChunkMissingError{Hash: hash}
	}
	return *rec, nil
}

func (s *FSStore) Relocate(hash types.Hash, tier types.StorageTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table.get(hash)
	if !ok {
		return &ChunkMissingError{Hash: hash}
	}
	if rec.Tier == tier {
		return nil
	}

	src, err := s.backend(rec.Tier)
	if err != nil {
		return err
	}
	dst, err := s.backend(tier)
	if err != nil {
		return err
	}

	stored, err := src.Read(rec.StorageKey)
	if err != nil {
		return err
	}

	// Verify before committing the move: relocation must never turn a
	// readable chunk into an unreadable one.
	data, err := decompress(stored, rec.Codec, rec.Size)
	if err != nil {
		return &CorruptChunkError{Hash: hash, Actual: types.ZeroHash}
	}
	if actual := hasher.SumChunk(data); actual != hash {
		return &CorruptChunkError{Hash: hash, Actual: actual}
	}

	key := keyFor(hash)
	if err := dst.Write(key, stored); err != nil {
		return err
	}

	oldBackend, oldKey := src, rec.StorageKey
	rec.BackendID = dst.ID()
	rec.StorageKey = key
	rec.Tier = tier
	if err := s.table.save(); err != nil {
		return err
	}

	// The old copy is removed only after the record points at the new
	// one; a crash in between leaves a harmless duplicate.
	if err := oldBackend.Delete(oldKey); err != nil {
		log.WithFields(log.Fields{"hash": hash.Short(), "key": oldKey}).
			Warnf("relocate: could not remove old copy: %v", err)
	}
	return nil
}

func (s *FSStore) CollectGarbage(grace time.Duration) (int, error) {
	s.mu.Lock()
	if s.gcRunning {
		s.mu.Unlock()
		return 0, fmt.Errorf("garbage collection already running")
	}
	s.gcRunning = true

	// Snapshot candidates while holding the lock; the per-chunk
	// re-check below handles references added after this point.
	cutoff := s.now().Add(-grace)
	var candidates []types.Hash
	for hash, rec := range s.table.records {
		if rec.RefCount == 0 && !rec.ZeroSince.IsZero() && rec.ZeroSince.Before(cutoff) {
			candidates = append(candidates, hash)
		}
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.gcRunning = false
		s.mu.Unlock()
	}()

	deleted := 0
	for _, hash := range candidates {
		s.mu.Lock()
		rec, ok := s.table.get(hash)
		// Re-verify at the moment of deletion: a reference may have
		// arrived since the snapshot.
		if !ok || rec.RefCount != 0 {
			s.mu.Unlock()
			continue
		}
		b, err := s.backend(rec.Tier)
		if err != nil {
			s.mu.Unlock()
			return deleted, err
		}
		if err := b.Delete(rec.StorageKey); err != nil {
			s.mu.Unlock()
			return deleted, err
		}
		s.table.delete(hash)
		if err := s.table.save(); err != nil {
			s.mu.Unlock()
			return deleted, err
		}
		s.mu.Unlock()
		deleted++
		log.WithField("hash", hash.Short()).Debug("gc: deleted chunk")
	}
	return deleted, nil
}

func (s *FSStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Chunks: len(s.table.records), PhysicalWrites: s.writes}
	for _, rec := range s.table.records {
		st.TotalBytes += rec.Size
		st.StoredBytes += rec.CompressedSize
		if rec.RefCount == 0 {
			st.ZeroRefChunks++
		}
	}
	return st
}

// Close flushes the record table (LastAccessed updates accumulate in
// memory between mutations).
func (s *FSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.save()
}
