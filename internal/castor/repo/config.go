package repo

import (
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/castorvc/castor/internal/castor/chunker"
	"github.com/castorvc/castor/internal/castor/hasher"
	"github.com/castorvc/castor/internal/castor/types"
)

// Config is the per-repository configuration, stored as YAML at
// .castor/config.yaml. Chunking parameters are fixed at init: changing
// them would silently defeat unchanged-file detection for everything
// already committed.
type Config struct {
	Hash string `yaml:"hash"`

	Chunker struct {
		Algorithm string `yaml:"algorithm"`
		MinSize   int    `yaml:"minSize"`
		AvgSize   int    `yaml:"avgSize"`
		MaxSize   int    `yaml:"maxSize"`
	} `yaml:"chunker"`

	Store struct {
		Compression types.CompressionCodec `yaml:"compression"`
		DefaultTier types.StorageTier      `yaml:"defaultTier"`
		// GCGrace is how long a chunk must sit at zero references
		// before collection may delete it, expressed as a Go duration
		// string ("24h"). The grace absorbs the race with readers that
		// resolved a manifest just before the last dereference.
		GCGrace string `yaml:"gcGrace"`
	} `yaml:"store"`

	Index struct {
		// Paranoid disables the stat-cache fast path: add and status
		// always rehash file content. The stat check is a heuristic,
		// and this switch is the documented way out of it.
		Paranoid bool `yaml:"paranoid"`
	} `yaml:"index"`

	User struct {
		Name string `yaml:"name"`
	} `yaml:"user"`
}

// DefaultConfig returns the configuration written by init.
func DefaultConfig() Config {
	var c Config
	c.Hash = hasher.Algorithm
	c.Chunker.Algorithm = chunker.AlgorithmGear
	c.Chunker.MinSize = chunker.DefaultMinSize
	c.Chunker.AvgSize = chunker.DefaultAvgSize
	c.Chunker.MaxSize = chunker.DefaultMaxSize
	c.Store.Compression = types.CodecLZ4
	c.Store.DefaultTier = types.TierHot
	c.Store.GCGrace = "24h"
	return c
}

// Params returns the configured chunking parameters.
func (c Config) Params() chunker.Params {
	return chunker.Params{
		MinSize: c.Chunker.MinSize,
		AvgSize: c.Chunker.AvgSize,
		MaxSize: c.Chunker.MaxSize,
	}
}

func loadConfig(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, errors.Wrap(err, "parsing config")
	}
	return c, nil
}

func saveConfig(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "writing config")
	}
	return nil
}
