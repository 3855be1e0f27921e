package rkv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// EventsConfig controls the optional flush/compaction event broadcast.
type EventsConfig struct {
	// Enabled turns on the PUB socket broadcaster.
	Enabled bool `yaml:"enabled"`
	// Address is the nanomsg PUB listen address, e.g. "tcp://127.0.0.1:5500".
	Address string `yaml:"address" validate:"required_if=Enabled true"`
}

// ArchiveConfig controls the optional S3 cold-storage upload of
// flushed and compacted SSTs.
type ArchiveConfig struct {
	// Enabled turns on best-effort archival.
	Enabled bool `yaml:"enabled"`
	// Bucket is the destination S3 bucket name.
	Bucket string `yaml:"bucket" validate:"required_if=Enabled true"`
	// Prefix is prepended to every archived object key.
	Prefix string `yaml:"prefix"`
	// Region is the AWS region the bucket lives in.
	Region string `yaml:"region" validate:"required_if=Enabled true"`
}

// Config describes one store instance. Name and Ext together with Dir
// determine the on-disk layout: `<Dir>/<Name>/<Ext>/data/*.<Ext>`.
type Config struct {
	// Name identifies this store among others sharing the same Dir.
	Name string `yaml:"name" validate:"required"`
	// Dir is the root directory the store's files live under.
	Dir string `yaml:"dir" validate:"required"`
	// Ext is the file extension used for SST data files, e.g. "rkv".
	Ext string `yaml:"ext" validate:"required,alphanum"`
	// MemtableByteBudget bounds the memtable's approximate in-memory
	// footprint (sum of key and value lengths) before a flush is
	// triggered.
	MemtableByteBudget int64 `yaml:"memtable_byte_budget" validate:"gt=0"`
	// CompactionBufferCap bounds how many records a pairwise merge
	// stages in memory before flushing a chunk to the output SST.
	CompactionBufferCap int `yaml:"compaction_buffer_cap" validate:"gte=0"`

	Events  EventsConfig  `yaml:"events"`
	Archive ArchiveConfig `yaml:"archive"`
}

// DefaultConfig returns a Config with sane defaults for local use;
// Name and Dir still need to be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		Ext:                 "rkv",
		MemtableByteBudget:  4 << 20,
		CompactionBufferCap: 4096,
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rkv: read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rkv: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("rkv: invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks struct tag constraints on the config.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("rkv: config validation: %w", err)
	}
	return nil
}

// dataDir is the directory SST data files and their sibling index
// files live in for this config.
func (c Config) dataDir() string {
	return filepath.Join(c.Dir, c.Name, c.Ext, "data")
}
