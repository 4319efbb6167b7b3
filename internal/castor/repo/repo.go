// Package repo ties a working directory to its castor metadata: the
// .castor directory layout, the repository config, and ignore rules
// for worktree walks.
package repo

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/castorvc/castor/internal/castor/index"
	"github.com/castorvc/castor/internal/castor/lock"
	"github.com/castorvc/castor/internal/castor/object"
	"github.com/castorvc/castor/internal/castor/store"
)

// MetaDirName is the repository metadata directory at the worktree
// root.
const MetaDirName = ".castor"

// IgnoreFileName holds user ignore patterns, gitignore syntax.
const IgnoreFileName = ".castorignore"

// Repo is an opened repository.
type Repo struct {
	// Root is the absolute worktree root.
	Root   string
	Config Config

	ignore *ignoreMatcher
}

// MetaDir returns the .castor directory.
func (r *Repo) MetaDir() string { return filepath.Join(r.Root, MetaDirName) }

// ConfigPath returns the config file location.
func (r *Repo) ConfigPath() string { return filepath.Join(r.MetaDir(), "config.yaml") }

// IndexPath returns the staging index location.
func (r *Repo) IndexPath() string { return filepath.Join(r.MetaDir(), "index") }

// StoreDir returns the chunk store root.
func (r *Repo) StoreDir() string { return filepath.Join(r.MetaDir(), "store") }

// Init creates a repository at root. Fails if one already exists.
func Init(root string) (*Repo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	metaDir := filepath.Join(absRoot, MetaDirName)
	if _, err := os.Stat(metaDir); err == nil {
		return nil, fmt.Errorf("repository already exists at %s", metaDir)
	}
	if err := os.MkdirAll(metaDir, 0755); err != nil {
		return nil, err
	}

	r := &Repo{Root: absRoot, Config: DefaultConfig()}
	if err := saveConfig(r.ConfigPath(), r.Config); err != nil {
		return nil, err
	}
	r.ignore = newIgnoreMatcher(absRoot)
	return r, nil
}

// Open finds the repository containing dir, walking up to the
// filesystem root like the usual VCS discovery.
func Open(dir string) (*Repo, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for candidate := absDir; ; {
		metaDir := filepath.Join(candidate, MetaDirName)
		if info, err := os.Stat(metaDir); err == nil && info.IsDir() {
			cfg, err := loadConfig(filepath.Join(metaDir, "config.yaml"))
			if err != nil {
				return nil, err
			}
			r := &Repo{Root: candidate, Config: cfg}
			r.ignore = newIgnoreMatcher(candidate)
			return r, nil
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return nil, fmt.Errorf("not a castor repository (searched from %s upward)", absDir)
		}
		candidate = parent
	}
}

// OpenStore opens the repository's chunk store.
func (r *Repo) OpenStore() (*store.FSStore, error) {
	return store.NewFSStore(r.StoreDir(), store.Options{
		Codec:       r.Config.Store.Compression,
		DefaultTier: r.Config.Store.DefaultTier,
	})
}

// OpenObjects opens the metadata object store.
func (r *Repo) OpenObjects() (*object.Objects, error) {
	return object.Open(r.MetaDir())
}

// IndexFile returns the staging index handle.
func (r *Repo) IndexFile() *index.File {
	return index.NewFile(r.IndexPath())
}

// Locks returns the lock manager.
func (r *Repo) Locks() *lock.Manager {
	return lock.NewManager(r.IndexFile(), nil)
}

// GCGrace parses the configured garbage-collection grace period.
func (r *Repo) GCGrace() (time.Duration, error) {
	grace := r.Config.Store.GCGrace
	if grace == "" {
		grace = "24h"
	}
	d, err := time.ParseDuration(grace)
	if err != nil {
		return 0, fmt.Errorf("invalid gcGrace %q in config: %w", grace, err)
	}
	return d, nil
}

// Owner returns the identity used for commits and locks: the
// configured user name, else user@host.
func (r *Repo) Owner() string {
	if r.Config.User.Name != "" {
		return r.Config.User.Name
	}
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		return name
	}
	return name + "@" + host
}

// Ignored reports whether an absolute path is excluded from worktree
// walks (metadata dir, .castorignore patterns).
func (r *Repo) Ignored(absPath string) bool {
	return r.ignore.ignored(absPath)
}
