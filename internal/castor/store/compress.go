package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/castorvc/castor/internal/castor/types"
)

// zstd encoder/decoder are reused across calls; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder init failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder init failed: " + err.Error())
	}
}

// compress encodes data with the requested codec. When the output
// would not be smaller than the input, the data is stored raw and the
// returned codec is CodecNone; media chunks are very often already
// compressed and paying decode cost for zero gain is a net loss.
func compress(data []byte, codec types.CompressionCodec) ([]byte, types.CompressionCodec, error) {
	switch codec {
	case types.CodecNone, "":
		return data, types.CodecNone, nil

	case types.CodecLZ4:
		bound := lz4.CompressBlockBound(len(data))
		dst := make([]byte, bound)
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, "", fmt.Errorf("lz4 compress: %w", err)
		}
		// n == 0 means the block was judged incompressible.
		if n == 0 || n >= len(data) {
			return data, types.CodecNone, nil
		}
		return dst[:n], types.CodecLZ4, nil

	case types.CodecZstd:
		out := zstdEncoder.EncodeAll(data, nil)
		if len(out) >= len(data) {
			return data, types.CodecNone, nil
		}
		return out, types.CodecZstd, nil

	default:
		return nil, "", fmt.Errorf("unknown compression codec %q", codec)
	}
}

// decompress reverses compress. size is the expected uncompressed
// length; a mismatch is reported as an error rather than returning
// short data.
func decompress(data []byte, codec types.CompressionCodec, size int64) ([]byte, error) {
	switch codec {
	case types.CodecNone, "":
		if int64(len(data)) != size {
			return nil, fmt.Errorf("raw chunk: got %d bytes, expected %d", len(data), size)
		}
		return data, nil

	case types.CodecLZ4:
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if int64(n) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return dst, nil

	case types.CodecZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if int64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression codec %q", codec)
	}
}
