package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// On-disk layout (all integers big-endian):
//
//	header: magic "CSTR", u32 version, u32 entry count,
//	        u32 extension count, 32-byte HEAD commit hash, u32 flags,
//	        u32 header checksum (first 4 bytes of BLAKE3 over the
//	        preceding header bytes)
//	entries, sorted by (path, stage): fixed stat fields, content hash,
//	        u16 flags, u8 stage, u16 path length, path bytes
//	extensions: 4-byte tag, u32 payload size, payload
//	trailer: 32-byte BLAKE3 over everything preceding it
//
// Extension payloads are self-contained; readers skip tags they do
// not recognize, which is how lock, resolve-undo and chunk-mapping
// data coexist with older readers of the same format version.
const (
	indexMagic   = "CSTR"
	indexVersion = 1

	headerLen = 4 + 4 + 4 + 4 + types.HashSize + 4
)

// Extension tags.
var (
	tagLocks       = [4]byte{'L', 'O', 'C', 'K'}
	tagResolveUndo = [4]byte{'R', 'E', 'U', 'C'}
	tagChunkLists  = [4]byte{'C', 'H', 'N', 'K'}
)

// Encode serializes the index. The output is complete and
// self-checking; writers persist it with an atomic rename so no torn
// state is ever visible.
func Encode(ix *Index) ([]byte, error) {
	var buf bytes.Buffer

	extensions, err := encodeExtensions(ix)
	if err != nil {
		return nil, err
	}

	// Header.
	buf.WriteString(indexMagic)
	writeU32(&buf, indexVersion)
	writeU32(&buf, uint32(len(ix.entries)))
	writeU32(&buf, uint32(len(extensions)))
	buf.Write(ix.Head[:])
	writeU32(&buf, ix.Flags)
	headerSum := hasher.SumPlain(buf.Bytes())
	buf.Write(headerSum[:4])

	// Entries.
	for _, e := range ix.entries {
		if len(e.Path) > 0xFFFF {
			return nil, fmt.Errorf("index: path too long: %q", e.Path)
		}
		writeI64(&buf, e.Stat.Size)
		writeI64(&buf, e.Stat.MtimeSec)
		writeU32(&buf, uint32(e.Stat.MtimeNsec))
		writeI64(&buf, e.Stat.CtimeSec)
		writeU32(&buf, uint32(e.Stat.CtimeNsec))
		writeU64(&buf, e.Stat.Dev)
		writeU64(&buf, e.Stat.Ino)
		writeU32(&buf, e.Stat.UID)
		writeU32(&buf, e.Stat.GID)
		writeU32(&buf, e.Stat.Mode)
		buf.Write(e.ContentHash[:])
		writeU32(&buf, e.Mode)
		writeU16(&buf, e.Flags)
		buf.WriteByte(byte(e.Stage))
		writeU16(&buf, uint16(len(e.Path)))
		buf.WriteString(e.Path)
	}

	// Extensions.
	for _, ext := range extensions {
		buf.Write(ext.tag[:])
		writeU32(&buf, uint32(len(ext.payload)))
		buf.Write(ext.payload)
	}

	// Trailing content hash over the whole file.
	sum := hasher.SumPlain(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

type extension struct {
	tag     [4]byte
	payload []byte
}

func encodeExtensions(ix *Index) ([]extension, error) {
	var exts []extension

	if len(ix.Locks) > 0 {
		payload, err := json.Marshal(ix.Locks)
		if err != nil {
			return nil, fmt.Errorf("index: encoding lock table: %w", err)
		}
		exts = append(exts, extension{tag: tagLocks, payload: payload})
	}

	if len(ix.resolveUndo) > 0 {
		payload, err := json.Marshal(ix.resolveUndo)
		if err != nil {
			return nil, fmt.Errorf("index: encoding resolve-undo: %w", err)
		}
		exts = append(exts, extension{tag: tagResolveUndo, payload: payload})
	}

	if payload := encodeChunkLists(ix); payload != nil {
		exts = append(exts, extension{tag: tagChunkLists, payload: payload})
	}

	return exts, nil
}

// encodeChunkLists packs the per-entry staged chunk lists: u32 item
// count, then per item a u32 entry index, u32 chunk count, and the
// (hash, offset, length) triples. Binary rather than JSON because a
// large staged file carries thousands of refs.
func encodeChunkLists(ix *Index) []byte {
	var buf bytes.Buffer
	count := uint32(0)
	writeU32(&buf, 0) // patched below

	for i, e := range ix.entries {
		if len(e.Chunks) == 0 {
			continue
		}
		writeU32(&buf, uint32(i))
		writeU32(&buf, uint32(len(e.Chunks)))
		for _, ref := range e.Chunks {
			buf.Write(ref.Hash[:])
			writeI64(&buf, ref.Offset)
			writeI64(&buf, ref.Length)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	payload := buf.Bytes()
	binary.BigEndian.PutUint32(payload[:4], count)
	return payload
}

// Decode parses and verifies an encoded index. Every structural
// failure is a *CorruptError: the caller gets a loaded index or
// nothing.
func Decode(data []byte, path string) (*Index, error) {
	corrupt := func(reason string) (*Index, error) {
		return nil, &CorruptError{Path: path, Reason: reason}
	}

	if len(data) < headerLen+4+types.HashSize {
		return corrupt("file too short")
	}

	// Trailer first: if the whole-file hash does not match, nothing
	// else is trustworthy.
	body := data[:len(data)-types.HashSize]
	var trailer types.Hash
	copy(trailer[:], data[len(data)-types.HashSize:])
	if hasher.SumPlain(body) != trailer {
		return corrupt("content hash mismatch")
	}

	if string(data[:4]) != indexMagic {
		return corrupt("bad magic")
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != indexVersion {
		return corrupt(fmt.Sprintf("unsupported version %d", version))
	}
	entryCount := binary.BigEndian.Uint32(data[8:12])
	extCount := binary.BigEndian.Uint32(data[12:16])

	ix := New()
	copy(ix.Head[:], data[16:16+types.HashSize])
	ix.Flags = binary.BigEndian.Uint32(data[48:52])

	headerSum := hasher.SumPlain(data[:headerLen])
	if !bytes.Equal(headerSum[:4], data[headerLen:headerLen+4]) {
		return corrupt("header checksum mismatch")
	}

	r := bytes.NewReader(body[headerLen+4:])

	var prevPath string
	var prevStage types.Stage
	for i := uint32(0); i < entryCount; i++ {
		e, err := decodeEntry(r)
		if err != nil {
			return corrupt(fmt.Sprintf("entry %d: %v", i, err))
		}
		if i > 0 && (e.Path < prevPath || (e.Path == prevPath && e.Stage <= prevStage)) {
			return corrupt(fmt.Sprintf("entries out of order at %q stage %d", e.Path, e.Stage))
		}
		prevPath, prevStage = e.Path, e.Stage
		ix.entries = append(ix.entries, e)
	}

	for i := uint32(0); i < extCount; i++ {
		var tag [4]byte
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return corrupt(fmt.Sprintf("extension %d: truncated tag", i))
		}
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return corrupt(fmt.Sprintf("extension %d: truncated size", i))
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return corrupt(fmt.Sprintf("extension %d: truncated payload", i))
		}

		switch tag {
		case tagLocks:
			if err := json.Unmarshal(payload, &ix.Locks); err != nil {
				return corrupt(fmt.Sprintf("lock extension: %v", err))
			}
		case tagResolveUndo:
			if err := json.Unmarshal(payload, &ix.resolveUndo); err != nil {
				return corrupt(fmt.Sprintf("resolve-undo extension: %v", err))
			}
		case tagChunkLists:
			if err := decodeChunkLists(ix, payload); err != nil {
				return corrupt(fmt.Sprintf("chunk-list extension: %v", err))
			}
		default:
			// Unknown tags are skipped, not fatal.
		}
	}

	if r.Len() != 0 {
		return corrupt(fmt.Sprintf("%d trailing bytes after extensions", r.Len()))
	}
	return ix, nil
}

func decodeEntry(r *bytes.Reader) (*types.IndexEntry, error) {
	var e types.IndexEntry
	var mtimeNsec, ctimeNsec uint32

	fields := []interface{}{
		&e.Stat.Size, &e.Stat.MtimeSec, &mtimeNsec,
		&e.Stat.CtimeSec, &ctimeNsec,
		&e.Stat.Dev, &e.Stat.Ino,
		&e.Stat.UID, &e.Stat.GID, &e.Stat.Mode,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	e.Stat.MtimeNsec = int64(mtimeNsec)
	e.Stat.CtimeNsec = int64(ctimeNsec)

	if _, err := io.ReadFull(r, e.ContentHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &e.Mode); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &e.Flags); err != nil {
		return nil, err
	}
	stage, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if stage > 3 {
		return nil, fmt.Errorf("invalid stage %d", stage)
	}
	e.Stage = types.Stage(stage)

	var pathLen uint16
	if err := binary.Read(r, binary.BigEndian, &pathLen); err != nil {
		return nil, err
	}
	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return nil, err
	}
	e.Path = string(pathBytes)
	return &e, nil
}

func decodeChunkLists(ix *Index, payload []byte) error {
	r := bytes.NewReader(payload)
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var entryIdx, nChunks uint32
		if err := binary.Read(r, binary.BigEndian, &entryIdx); err != nil {
			return err
		}
		if err := binary.Read(r, binary.BigEndian, &nChunks); err != nil {
			return err
		}
		if int(entryIdx) >= len(ix.entries) {
			return fmt.Errorf("chunk list references entry %d of %d", entryIdx, len(ix.entries))
		}
		refs := make([]types.ChunkRef, nChunks)
		for j := range refs {
			if _, err := io.ReadFull(r, refs[j].Hash[:]); err != nil {
				return err
			}
			if err := binary.Read(r, binary.BigEndian, &refs[j].Offset); err != nil {
				return err
			}
			if err := binary.Read(r, binary.BigEndian, &refs[j].Length); err != nil {
				return err
			}
		}
		ix.entries[entryIdx].Chunks = refs
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes", r.Len())
	}
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) { binary.Write(buf, binary.BigEndian, v) }
func writeU32(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.BigEndian, v) }
func writeU64(buf *bytes.Buffer, v uint64) { binary.Write(buf, binary.BigEndian, v) }
func writeI64(buf *bytes.Buffer, v int64)  { binary.Write(buf, binary.BigEndian, v) }
