package store

import (
	"fmt"

	"github.com/castorvc/castor/internal/castor/types"
)

// HashCollisionError means two different byte sequences produced the
// same chunk hash: a Put found an existing record whose size does not
// match the new bytes. This is a fatal data-integrity fault; the store
// never overwrites the existing chunk.
type HashCollisionError struct {
	Hash         types.Hash
	ExistingSize int64
	NewSize      int64
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("hash collision on %s: existing size %d, new size %d",
		e.Hash, e.ExistingSize, e.NewSize)
}

// CorruptChunkError means stored bytes failed their own hash check on
// read. Surfaced to the caller; a higher layer may refetch from a
// replica.
type CorruptChunkError struct {
	Hash   types.Hash
	Actual types.Hash
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("corrupt chunk %s: stored bytes hash to %s", e.Hash, e.Actual)
}

// ChunkMissingError means no record exists for the requested hash.
type ChunkMissingError struct {
	Hash types.Hash
}

func (e *ChunkMissingError) Error() string {
	return fmt.Sprintf("chunk %s not found", e.Hash)
}

// RefCountUnderflowError means RemoveRef was called on a chunk whose
// count is already zero. A programming fault: fail fast, never clamp.
type RefCountUnderflowError struct {
	Hash types.Hash
}

func (e *RefCountUnderflowError) Error() string {
	return fmt.Sprintf("ref count underflow on chunk %s", e.Hash)
}
