package chunker

import (
	"io"
	"math/bits"

	"github.com/castorvc/castor/internal/castor/hasher"
)

// gearWindow is the effective window of the gear rolling hash: each
// shift-and-add discards one bit of history per byte, so only the most
// recent 64 bytes influence the hash value.
const gearWindow = 64

// gearChunker is a normalized content-defined chunker. The rolling
// hash is GearHash (hash = hash<<1 + table[byte]); a boundary fires
// when the hash matches a high-bit mask. Normalization uses two masks:
// a stricter one before the average size and a looser one after, which
// narrows the chunk size distribution without losing content
// sensitivity. A boundary is forced at MaxSize so degenerate input
// (all zeros, repeating patterns) cannot produce unbounded chunks.
type gearChunker struct {
	params Params
	data   []byte
	pos    int64
	hints  []int64

	// maskStrict applies below AvgSize, maskLoose at or above it.
	maskStrict uint64
	maskLoose  uint64
}

func newGearChunker(params Params, data []byte, hints []int64) *gearChunker {
	avgBits := bits.TrailingZeros64(uint64(params.AvgSize))

	// Two extra mask bits before the average point and two fewer after
	// center the size distribution on AvgSize (the FastCDC
	// normalization scheme, level 2). High-order bits carry the most
	// entropy in a shift-based hash, so masks occupy the top of the
	// word.
	strictBits := avgBits + 2
	looseBits := avgBits - 2
	if strictBits > 63 {
		strictBits = 63
	}
	if looseBits < 1 {
		looseBits = 1
	}

	return &gearChunker{
		params:     params,
		data:       data,
		hints:      hints,
		maskStrict: highMask(strictBits),
		maskLoose:  highMask(looseBits),
	}
}

// highMask returns a mask with n one bits in the highest positions.
func highMask(n int) uint64 {
	return ^uint64(0) << (64 - n)
}

func (c *gearChunker) Next() (*Chunk, error) {
	if c.pos >= int64(len(c.data)) {
		return nil, io.EOF
	}

	remaining := c.data[c.pos:]
	length := c.cut(remaining)

	chunk := &Chunk{
		Offset: c.pos,
		Length: int64(length),
		Data:   remaining[:length],
		Hash:   hasher.SumChunk(remaining[:length]),
	}
	c.pos += int64(length)
	return chunk, nil
}

// cut returns the length of the next chunk starting at c.pos. The
// decision order is fixed: a short final chunk, then an eligible
// boundary hint, then rolling-hash detection with a forced break at
// MaxSize. Keeping hints ahead of detection makes the boundary
// sequence a pure function of (bytes, hints).
func (c *gearChunker) cut(data []byte) int {
	if len(data) <= c.params.MinSize {
		return len(data)
	}

	if hint, ok := c.takeHint(int64(len(data))); ok {
		return hint
	}

	end := len(data)
	if end > c.params.MaxSize {
		end = c.params.MaxSize
	}
	normalPoint := c.params.AvgSize
	if normalPoint > end {
		normalPoint = end
	}

	// No boundary can fire before MinSize, and the hash window is
	// gearWindow bytes, so hashing may start that far before the first
	// possible boundary. The hash state at MinSize is then identical
	// to having processed every byte.
	var hash uint64
	i := c.params.MinSize - gearWindow
	if i < 0 {
		i = 0
	}

	for ; i < normalPoint; i++ {
		hash = (hash << 1) + gearTable[data[i]]
		if i+1 >= c.params.MinSize && hash&c.maskStrict == 0 {
			return i + 1
		}
	}
	for ; i < end; i++ {
		hash = (hash << 1) + gearTable[data[i]]
		if hash&c.maskLoose == 0 {
			return i + 1
		}
	}

	// end is either MaxSize (forced break) or the end of the input.
	return end
}

// takeHint consumes hints at or behind the current position and
// returns the first one that lands inside [MinSize, MaxSize] from the
// chunk start, bounded by the remaining data. Hints that fall closer
// than MinSize are skipped; a hint past MaxSize stays pending for a
// later chunk.
func (c *gearChunker) takeHint(remaining int64) (int, bool) {
	for len(c.hints) > 0 {
		rel := c.hints[0] - c.pos
		if rel <= 0 {
			c.hints = c.hints[1:]
			continue
		}
		if rel < int64(c.params.MinSize) {
			c.hints = c.hints[1:]
			continue
		}
		if rel > int64(c.params.MaxSize) || rel > remaining {
			return 0, false
		}
		c.hints = c.hints[1:]
		return int(rel), true
	}
	return 0, false
}
