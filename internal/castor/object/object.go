// Package object builds and persists the immutable metadata objects:
// file manifests, directory trees, and commits. Objects are encoded as
// canonical JSON and addressed by the hash of their encoding, so
// identical content always yields identical object hashes. Commit
// deduplication and unchanged-subtree detection rest on that
// property. Manifests and trees live in one content-addressed directory
// and commits in another; history is enumerated by walking parent links
// from HEAD, never by listing the directory.
package object

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// CorruptObjectError means an object's stored bytes no longer hash to
// its name. Treated like any other integrity fault: surfaced, never
// silently repaired.
type CorruptObjectError struct {
	Hash   types.Hash
	Actual types.Hash
}

func (e *CorruptObjectError) Error() string {
	return fmt.Sprintf("corrupt object %s: stored bytes hash to %s", e.Hash, e.Actual)
}

// NotFoundError means no object exists under the requested hash.
type NotFoundError struct {
	Hash types.Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.Hash)
}

// Objects reads and writes metadata objects under a repository's
// metadata directory.
type Objects struct {
	objectsDir string
	commitsDir string
}

// Open creates the object directories if needed.
func Open(metaDir string) (*Objects, error) {
	o := &Objects{
		objectsDir: filepath.Join(metaDir, "objects"),
		commitsDir: filepath.Join(metaDir, "commits"),
	}
	for _, dir := range []string{o.objectsDir, o.commitsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating object dir %s", dir)
		}
	}
	return o, nil
}

func objectPath(dir string, hash types.Hash) string {
	hex := hash.String()
	return filepath.Join(dir, hex[:2], hex+".json")
}

// write encodes v, hashes the encoding and stores it atomically.
// Writing an object that already exists is a no-op (same hash, same
// bytes).
func write(dir string, v interface{}) (types.Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return types.ZeroHash, errors.Wrap(err, "encoding object")
	}
	hash := hasher.SumObject(data)

	path := objectPath(dir, hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.ZeroHash, errors.Wrap(err, "creating object fan-out dir")
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return types.ZeroHash, errors.Wrap(err, "writing object")
	}
	return hash, nil
}

// read loads and integrity-checks an object's raw encoding.
func read(dir string, hash types.Hash) ([]byte, error) {
	data, err := os.ReadFile(objectPath(dir, hash))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Hash: hash}
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading object")
	}
	if actual := hasher.SumObject(data); actual != hash {
		return nil, &CorruptObjectError{Hash: hash, Actual: actual}
	}
	return data, nil
}

// PutManifest stores a file manifest and returns its object hash.
func (o *Objects) PutManifest(m *types.FileManifest) (types.Hash, error) {
	return write(o.objectsDir, m)
}

func (o *Objects) GetManifest(hash types.Hash) (*types.FileManifest, error) {
	data, err := read(o.objectsDir, hash)
	if err != nil {
		return nil, err
	}
	var m types.FileManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	return &m, nil
}

// PutTree sorts the entries by name (determinism) and stores the tree.
func (o *Objects) PutTree(t *types.Tree) (types.Hash, error) {
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].Name < t.Entries[j].Name
	})
	return write(o.objectsDir, t)
}

func (o *Objects) GetTree(hash types.Hash) (*types.Tree, error) {
	data, err := read(o.objectsDir, hash)
	if err != nil {
		return nil, err
	}
	var t types.Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "decoding tree")
	}
	return &t, nil
}

func (o *Objects) PutCommit(c *types.Commit) (types.Hash, error) {
	return write(o.commitsDir, c)
}

func (o *Objects) GetCommit(hash types.Hash) (*types.Commit, error) {
	data, err := read(o.commitsDir, hash)
	if err != nil {
		return nil, err
	}
	var c types.Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decoding commit")
	}
	return &c, nil
}

// DeleteCommit removes a commit object. Used when finalization fails
// after the object was written, so no dangling reachable commit
// remains.
func (o *Objects) DeleteCommit(hash types.Hash) error {
	err := os.Remove(objectPath(o.commitsDir, hash))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting commit object")
	}
	return nil
}

// CommitInfo pairs a commit with its hash for listing.
type CommitInfo struct {
	Hash   types.Hash
	Commit types.Commit
}

// ListCommits returns the commits reachable from head by following
// parent links, oldest first. A zero head means no history. Listing by
// reachability rather than by directory contents keeps half-finalized
// commit objects invisible: a commit that never became HEAD holds no
// chunk references, so exposing it would hand out history the garbage
// collector is free to hollow out.
func (o *Objects) ListCommits(head types.Hash) ([]CommitInfo, error) {
	var infos []CommitInfo
	seen := map[types.Hash]bool{}
	var queue []types.Hash
	if !head.IsZero() {
		queue = append(queue, head)
		seen[head] = true
	}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		c, err := o.GetCommit(hash)
		if err != nil {
			return nil, err
		}
		infos = append(infos, CommitInfo{Hash: hash, Commit: *c})
		for _, p := range c.Parents {
			if !p.IsZero() && !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	// The walk yields newest first; callers expect oldest first.
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
	return infos, nil
}

// FindCommit resolves a full hash or unambiguous hash prefix among the
// commits reachable from head.
func (o *Objects) FindCommit(head types.Hash, identifier string) (*CommitInfo, error) {
	infos, err := o.ListCommits(head)
	if err != nil {
		return nil, err
	}

	var matches []CommitInfo
	for _, info := range infos {
		if strings.HasPrefix(info.Hash.String(), identifier) {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no commit matches %q", identifier)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous commit identifier %q matches %d commits", identifier, len(matches))
	}
}
