package index

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

func populatedIndex() *Index {
	ix := New()
	ix.Head = hasher.SumObject([]byte("head commit"))
	ix.Flags = 0x2

	a := entry("assets/a.bin", types.StageNormal, "a")
	a.Chunks = []types.ChunkRef{
		{Hash: hasher.SumChunk([]byte("a1")), Offset: 0, Length: 100},
		{Hash: hasher.SumChunk([]byte("a2")), Offset: 100, Length: 50},
	}
	ix.Set(a)
	ix.Set(entry("assets/b.bin", types.StageNormal, "b"))
	ix.RecordConflict("conflict.bin",
		entry("conflict.bin", 0, "base"),
		entry("conflict.bin", 0, "ours"),
		entry("conflict.bin", 0, "theirs"))

	ix.Locks = []types.LockEntry{{
		Path:      "assets/a.bin",
		LockID:    "0e1f",
		Owner:     "alice",
		LockedAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 4, 1, 17, 0, 0, 0, time.UTC),
	}}
	ix.resolveUndo = map[string][]types.IndexEntry{
		"old.bin": {*entry("old.bin", types.StageOurs, "ours")},
	}
	return ix
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	ix := populatedIndex()

	data, err := Encode(ix)
	require.NoError(t, err)

	decoded, err := Decode(data, "index")
	require.NoError(t, err)

	assert.Equal(t, ix.Head, decoded.Head)
	assert.Equal(t, ix.Flags, decoded.Flags)
	assert.Equal(t, ix.Locks, decoded.Locks)
	assert.Equal(t, ix.resolveUndo, decoded.resolveUndo)
	require.Equal(t, ix.Len(), decoded.Len())
	for i, want := range ix.Entries() {
		assert.Equal(t, want, decoded.Entries()[i], "entry %d", i)
	}

	// A second encode of the decoded index is byte-identical.
	again, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeEmptyIndex(t *testing.T) {
	data, err := Encode(New())
	require.NoError(t, err)

	decoded, err := Decode(data, "index")
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Len())
	assert.True(t, decoded.Head.IsZero())
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, err := Encode(populatedIndex())
	require.NoError(t, err)

	cases := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"flipped content byte", func(d []byte) []byte {
			d[headerLen+10] ^= 0xFF
			return d
		}},
		{"truncated file", func(d []byte) []byte {
			return d[:len(d)-5]
		}},
		{"too short", func(d []byte) []byte {
			return d[:10]
		}},
		{"bad magic", func(d []byte) []byte {
			copy(d[:4], "NOPE")
			return resign(d)
		}},
		{"unsupported version", func(d []byte) []byte {
			binary.BigEndian.PutUint32(d[4:8], 99)
			return resign(d)
		}},
		{"header checksum mismatch", func(d []byte) []byte {
			// Valid trailer, stale header checksum.
			binary.BigEndian.PutUint32(d[48:52], 0xDEAD)
			body := d[:len(d)-types.HashSize]
			sum := hasher.SumPlain(body)
			copy(d[len(d)-types.HashSize:], sum[:])
			return d
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mangled := tc.mangle(append([]byte(nil), data...))
			_, err := Decode(mangled, "index")
			var corrupt *CorruptError
			assert.ErrorAs(t, err, &corrupt)
		})
	}
}

// resign recomputes the header checksum and trailer after a header
// mutation so only the intended defect remains.
func resign(d []byte) []byte {
	sum := hasher.SumPlain(d[:headerLen])
	copy(d[headerLen:headerLen+4], sum[:4])
	body := d[:len(d)-types.HashSize]
	trailer := hasher.SumPlain(body)
	copy(d[len(d)-types.HashSize:], trailer[:])
	return d
}

func TestDecodeSkipsUnknownExtensions(t *testing.T) {
	ix := New()
	ix.Set(entry("a.bin", types.StageNormal, "a"))
	data, err := Encode(ix)
	require.NoError(t, err)

	// Splice an unrecognized extension between the entries and the
	// trailer, bump the extension count, and re-sign.
	body := data[:len(data)-types.HashSize]
	var ext bytes.Buffer
	ext.WriteString("XFUT")
	binary.Write(&ext, binary.BigEndian, uint32(7))
	ext.WriteString("payload")

	spliced := append(append([]byte(nil), body...), ext.Bytes()...)
	binary.BigEndian.PutUint32(spliced[12:16], binary.BigEndian.Uint32(spliced[12:16])+1)
	spliced = append(spliced, make([]byte, types.HashSize)...)
	spliced = resign(spliced)

	decoded, err := Decode(spliced, "index")
	require.NoError(t, err, "unknown extension tags must be skipped, not fatal")
	assert.Equal(t, 1, decoded.Len())
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(New())
	require.NoError(t, err)

	body := data[:len(data)-types.HashSize]
	spliced := append(append([]byte(nil), body...), "junk"...)
	spliced = append(spliced, make([]byte, types.HashSize)...)
	spliced = resign(spliced)

	_, err = Decode(spliced, "index")
	var corrupt *CorruptError
	assert.ErrorAs(t, err, &corrupt)
}

func TestDecodeRejectsOutOfOrderEntries(t *testing.T) {
	ix := New()
	// Bypass Set to build an unsorted entry list.
	ix.entries = []*types.IndexEntry{
		entry("b.bin", types.StageNormal, "b"),
		entry("a.bin", types.StageNormal, "a"),
	}
	data, err := Encode(ix)
	require.NoError(t, err)

	_, err = Decode(data, "index")
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "out of order")
}
