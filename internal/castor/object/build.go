package object

import (
	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// BuildManifest assembles chunker output into a file manifest. The
// chunk list covers every byte of the file in order; FileHash is the
// whole-file hash derived from the ordered chunk sequence.
func BuildManifest(path string, mode uint32, chunks []chunker.Chunk) *types.FileManifest {
	refs := make([]types.ChunkRef, len(chunks))
	var total int64
	for i, c := range chunks {
		refs[i] = types.ChunkRef{Hash: c.Hash, Offset: c.Offset, Length: c.Length}
		total += c.Length
	}
	return &types.FileManifest{
		Path:      path,
		Mode:      mode,
		FileHash:  hasher.SumFile(refs),
		Chunks:    refs,
		TotalSize: total,
	}
}

// ManifestChunkHashes returns the distinct chunk hashes a manifest
// references, preserving first-occurrence order. A manifest may name
// the same chunk for several ranges (repeated content within one
// file); references are counted per manifest, not per range.
func ManifestChunkHashes(m *types.FileManifest) []types.Hash {
	seen := make(map[types.Hash]bool, len(m.Chunks))
	var hashes []types.Hash
	for _, ref := range m.Chunks {
		if !seen[ref.Hash] {
			seen[ref.Hash] = true
			hashes = append(hashes, ref.Hash)
		}
	}
	return hashes
}

// WalkChunks collects every distinct chunk hash reachable from a tree,
// recursing through subtrees and manifests. This is the reference
// universe of a commit: finalizing a commit AddRefs exactly this set,
// discarding one RemoveRefs it.
func (o *Objects) WalkChunks(tree types.Hash) ([]types.Hash, error) {
	seen := make(map[types.Hash]bool)
	var hashes []types.Hash

	var walk func(treeHash types.Hash) error
	walk = func(treeHash types.Hash) error {
		t, err := o.GetTree(treeHash)
		if err != nil {
			return err
		}
		for _, entry := range t.Entries {
			switch entry.Type {
			case types.EntryTree:
				if err := walk(entry.Hash); err != nil {
					return err
				}
			case types.EntryBlob:
				m, err := o.GetManifest(entry.Hash)
				if err != nil {
					return err
				}
				for _, hash := range ManifestChunkHashes(m) {
					if !seen[hash] {
						seen[hash] = true
						hashes = append(hashes, hash)
					}
				}
			}
		}
		return nil
	}

	if err := walk(tree); err != nil {
		return nil, err
	}
	return hashes, nil
}

// WalkManifests maps path to manifest for every file reachable from a
// tree. Paths are slash-separated and relative to the tree root.
func (o *Objects) WalkManifests(tree types.Hash) (map[string]*types.FileManifest, error) {
	out := make(map[string]*types.FileManifest)

	var walk func(treeHash types.Hash, prefix string) error
	walk = func(treeHash types.Hash, prefix string) error {
		t, err := o.GetTree(treeHash)
		if err != nil {
			return err
		}
		for _, entry := range t.Entries {
			path := entry.Name
			if prefix != "" {
				path = prefix + "/" + entry.Name
			}
			switch entry.Type {
			case types.EntryTree:
				if err := walk(entry.Hash, path); err != nil {
					return err
				}
			case types.EntryBlob:
				m, err := o.GetManifest(entry.Hash)
				if err != nil {
					return err
				}
				out[path] = m
			}
		}
		return nil
	}

	if err := walk(tree, ""); err != nil {
		return nil, err
	}
	return out, nil
}
