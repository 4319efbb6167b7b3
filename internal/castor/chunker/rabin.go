package chunker

import (
	"bytes"
	"io"

	"github.com/aclements/go-rabin/rabin"

	"github.com/castorvc/castor/internal/castor/hasher"
)

// Rabin chunker configuration: a 64-bit irreducible polynomial over
// GF(2) and a 64-byte rolling window. The table is expensive to build,
// so it is computed once and shared.
const (
	rabinPoly       = rabin.Poly64
	rabinWindowSize = 64
)

var rabinTable = rabin.NewTable(rabinPoly, rabinWindowSize)

// rabinChunker wraps the go-rabin chunker. It exists for repositories
// initialized with the rabin algorithm; it has no boundary-hint
// support, which is why gear is the default for new repositories.
type rabinChunker struct {
	data  []byte
	pos   int64
	inner *rabin.Chunker
}

func newRabinChunker(params Params, data []byte) *rabinChunker {
	return &rabinChunker{
		data: data,
		inner: rabin.NewChunker(rabinTable, bytes.NewReader(data),
			params.MinSize, params.AvgSize, params.MaxSize),
	}
}

func (c *rabinChunker) Next() (*Chunk, error) {
	if c.pos >= int64(len(c.data)) {
		return nil, io.EOF
	}

	length, err := c.inner.Next()
	if err == io.EOF {
		// go-rabin can report EOF without emitting the tail for inputs
		// shorter than the minimum size; take the rest as one chunk.
		length = int(int64(len(c.data)) - c.pos)
	} else if err != nil {
		return nil, err
	}

	data := c.data[c.pos : c.pos+int64(length)]
	chunk := &Chunk{
		Offset: c.pos,
		Length: int64(length),
		Data:   data,
		Hash:   hasher.SumChunk(data),
	}
	c.pos += int64(length)
	return chunk, nil
}
