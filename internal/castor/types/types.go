// Package types holds the value types shared across the castor core:
// hashes, chunk records, manifests, trees, commits, index entries and
// lock entries. Everything here is plain data; behavior lives in the
// packages that operate on it.
package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

// HashSize is the size in bytes of every content hash (BLAKE3-256).
const HashSize = 32

// Hash is a 32-byte content hash. It identifies a chunk, a file, or a
// metadata object depending on the hashing domain it was produced in.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as "no hash" (e.g. no HEAD yet).
var ZeroHash Hash

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 hex characters, for display.
func (h Hash) Short() string {
	return h.String()[:12]
}

// IsZero reports whether the hash is the zero value.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler so hashes serialize as
// hex strings in JSON objects.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("invalid hash length %d, want %d", len(s), HashSize*2)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], raw)
	return h, nil
}

// StorageTier names where a chunk physically lives. Placement policy is
// decided outside the core; the store only records and honors the tier
// it is told to use.
type StorageTier string

const (
	TierHot     StorageTier = "hot"
	TierWarm    StorageTier = "warm"
	TierCold    StorageTier = "cold"
	TierArchive StorageTier = "archive"
)

// CompressionCodec identifies how a chunk's bytes are stored on disk.
type CompressionCodec string

const (
	CodecNone CompressionCodec = "none"
	CodecLZ4  CompressionCodec = "lz4"
	CodecZstd CompressionCodec = "zstd"
)

// ChunkRecord is the store's metadata for one unique chunk hash. There
// is exactly one record per hash, shared by every manifest that
// references the chunk.
type ChunkRecord struct {
	Hash           Hash             `msgpack:"hash"`
	Size           int64            `msgpack:"size"`
	CompressedSize int64            `msgpack:"csize"`
	Codec          CompressionCodec `msgpack:"codec"`
	BackendID      string           `msgpack:"backend"`
	StorageKey     string           `msgpack:"key"`
	Tier           StorageTier      `msgpack:"tier"`
	RefCount       int64            `msgpack:"refs"`
	LastAccessed   time.Time        `msgpack:"atime"`

	// ZeroSince is when RefCount last reached zero. It drives the GC
	// grace period and is cleared when the count rises again.
	ZeroSince time.Time `msgpack:"zero_since"`
}

// ChunkRef is one entry of a file manifest: which chunk covers which
// byte range of the file.
type ChunkRef struct {
	Hash   Hash  `json:"hash"`
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// FileManifest is the ordered chunk list that reconstructs one file.
// Concatenating the chunks in order reproduces the file's exact bytes.
// FileHash digests the ordered (chunk hash, length) sequence in the
// file hashing domain, so it identifies the content as chunked: equal
// bytes cut at equal boundaries reproduce it. Comparisons that must
// not depend on boundaries go through the chunk list instead.
type FileManifest struct {
	Path      string     `json:"path"`
	Mode      uint32     `json:"mode"`
	FileHash  Hash       `json:"fileHash"`
	Chunks    []ChunkRef `json:"chunks"`
	TotalSize int64      `json:"totalSize"`
}

// TreeEntryType distinguishes manifest references from subtree
// references inside a Tree.
type TreeEntryType string

const (
	EntryBlob TreeEntryType = "blob"
	EntryTree TreeEntryType = "tree"
)

// TreeEntry references either a FileManifest (blob) or a nested Tree.
type TreeEntry struct {
	Name string        `json:"name"`
	Mode uint32        `json:"mode"`
	Type TreeEntryType `json:"type"`
	Hash Hash          `json:"hash"`
}

// Tree is a hash-addressed directory: entries sorted by name so that
// identical directory contents always hash identically.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// Commit references one root tree and zero or more parents. Immutable
// once written.
type Commit struct {
	Tree       Hash      `json:"tree"`
	Parents    []Hash    `json:"parents,omitempty"`
	Author     string    `json:"author"`
	Committer  string    `json:"committer"`
	AuthorTime time.Time `json:"authorTime"`
	CommitTime time.Time `json:"commitTime"`
	Message    string    `json:"message"`
}

// Stage marks an index entry's role during a merge. Stage 0 is a
// normal resolved entry; 1/2/3 are the ancestor/ours/theirs sides of
// an unresolved conflict.
type Stage uint8

const (
	StageNormal   Stage = 0
	StageAncestor Stage = 1
	StageOurs     Stage = 2
	StageTheirs   Stage = 3
)

// StatCache is the filesystem metadata snapshot used to skip rehashing
// unchanged files. Values, never OS handles, so the index stays
// portable and testable without a real filesystem.
type StatCache struct {
	Size      int64
	MtimeSec  int64
	MtimeNsec int64
	CtimeSec  int64
	CtimeNsec int64
	Dev       uint64
	Ino       uint64
	UID       uint32
	GID       uint32
	Mode      uint32
}

// IndexEntry is one staged path. Multiple entries may exist for the
// same path only while their Stage is nonzero.
type IndexEntry struct {
	Path        string
	Stat        StatCache
	ContentHash Hash
	Mode        uint32
	Flags       uint16
	Stage       Stage

	// Chunks is the staged chunk list for the path, persisted in the
	// index's chunk-mapping extension. May be nil for entries recorded
	// from a tree (e.g. conflict stages) whose manifests live in the
	// object store.
	Chunks []ChunkRef
}

// LockEntry is a path-scoped advisory lock. At most one unexpired
// entry exists per path.
type LockEntry struct {
	Path      string    `json:"path"`
	LockID    string    `json:"lockId"`
	Owner     string    `json:"owner"`
	Reason    string    `json:"reason,omitempty"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the lock is expired as of now. Expiry is a
// pure check made at the moment of use; no background timer exists.
func (l LockEntry) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
