// Package chunker splits byte streams into content-defined chunks.
// Boundary placement depends only on a fixed trailing window of bytes,
// never on absolute file position, so a small edit to a huge file only
// invalidates the chunks it touches.
//
// Two engines are available: the default normalized gear engine, which
// supports format-aware boundary hints, and a Rabin engine kept for
// repositories initialized with the older algorithm. The engine is
// fixed per repository in its config; mixing engines within one
// repository would break unchanged-file detection.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/castorvc/castor/internal/castor/types"
)

// Default chunk size parameters, tuned for large media files: a 10 MB
// asset lands around ten chunks, and a small localized edit touches
// one or two of them.
const (
	DefaultMinSize = 256 * 1024
	DefaultAvgSize = 1024 * 1024
	DefaultMaxSize = 4 * 1024 * 1024
)

// Engine names accepted in repository config.
const (
	AlgorithmGear  = "gear"
	AlgorithmRabin = "rabin"
)

// ErrDeterminismViolation is returned by VerifyDeterminism when two
// runs over identical input disagree. It indicates a chunker bug and
// exists for the test suite's self-checks.
var ErrDeterminismViolation = errors.New("chunker: runs over identical input produced different boundaries")

// Params bound chunk sizes. AvgSize must be a power of two; the gear
// boundary masks are derived from its bit length.
type Params struct {
	MinSize int
	AvgSize int
	MaxSize int
}

// DefaultParams returns the default media-tuned parameters.
func DefaultParams() Params {
	return Params{MinSize: DefaultMinSize, AvgSize: DefaultAvgSize, MaxSize: DefaultMaxSize}
}

// Validate checks the parameter invariants shared by both engines.
func (p Params) Validate() error {
	if p.MinSize <= 0 || p.AvgSize <= 0 || p.MaxSize <= 0 {
		return fmt.Errorf("chunker: sizes must be positive, got min=%d avg=%d max=%d", p.MinSize, p.AvgSize, p.MaxSize)
	}
	if p.MinSize >= p.AvgSize || p.AvgSize >= p.MaxSize {
		return fmt.Errorf("chunker: need min < avg < max, got min=%d avg=%d max=%d", p.MinSize, p.AvgSize, p.MaxSize)
	}
	if bits.OnesCount64(uint64(p.AvgSize)) != 1 {
		return fmt.Errorf("chunker: avg size %d is not a power of two", p.AvgSize)
	}
	return nil
}

// Chunk is one content-defined piece of the input. Data is a slice
// into the caller's buffer and stays valid as long as that buffer does.
type Chunk struct {
	Offset int64
	Length int64
	Data   []byte
	Hash   types.Hash
}

// Chunker yields chunks one at a time. Next returns io.EOF after the
// final chunk; stopping early is always safe because every returned
// chunk is independently complete.
type Chunker interface {
	Next() (*Chunk, error)
}

// New creates a chunker for data using the named engine. Hints are
// optional ascending byte offsets (e.g. video keyframes); the gear
// engine snaps boundaries to hints that fit the size bounds, the
// Rabin engine ignores them.
func New(algorithm string, params Params, data []byte, hints []int64) (Chunker, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch algorithm {
	case AlgorithmGear:
		return newGearChunker(params, data, hints), nil
	case AlgorithmRabin:
		return newRabinChunker(params, data), nil
	default:
		return nil, fmt.Errorf("chunker: unknown algorithm %q", algorithm)
	}
}

// ChunkAll runs a chunker to completion and returns every chunk.
func ChunkAll(algorithm string, params Params, data []byte, hints []int64) ([]Chunk, error) {
	c, err := New(algorithm, params, data, hints)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
}

// VerifyDeterminism chunks data twice and compares the boundary
// sequences. A mismatch returns ErrDeterminismViolation.
func VerifyDeterminism(algorithm string, params Params, data []byte, hints []int64) error {
	first, err := ChunkAll(algorithm, params, data, hints)
	if err != nil {
		return err
	}
	second, err := ChunkAll(algorithm, params, data, hints)
	if err != nil {
		return err
	}
	if len(first) != len(second) {
		return ErrDeterminismViolation
	}
	for i := range first {
		if first[i].Offset != second[i].Offset || first[i].Length != second[i].Length || first[i].Hash != second[i].Hash {
			return ErrDeterminismViolation
		}
	}
	return nil
}
