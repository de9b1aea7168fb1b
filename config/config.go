// Package config loads the engine's YAML configuration, mirroring the
// teacher's internal/config package.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the engine's operational configuration (SPEC_FULL.md §A).
type Config struct {
	// MaxProcessAllIterations bounds ProcessAll's drive loop (spec.md
	// §4.4, resolved as configurable per SPEC_FULL.md §C.3). Zero means
	// "use the built-in default of 1000".
	MaxProcessAllIterations int `yaml:"maxProcessAllIterations"`

	// PersistenceDir is where the badger persistence adapter stores its
	// data files, if persistence is enabled.
	PersistenceDir string `yaml:"persistenceDir"`

	// MinimumFreeSpaceGB gates opening the persistence store when free
	// disk space would fall below this threshold.
	MinimumFreeSpaceGB int `yaml:"minimumFreeSpaceGB"`

	// EnableCompression toggles LZMA compression of persisted content
	// blobs.
	EnableCompression bool `yaml:"enableCompression"`

	// EnableEncryption toggles at-rest chacha20poly1305 encryption of
	// persisted content blobs. EncryptionPassphrase must be set if true.
	EnableEncryption     bool   `yaml:"enableEncryption"`
	EncryptionPassphrase string `yaml:"encryptionPassphrase"`
}

// defaults is the built-in configuration. Load starts from it, so any field
// absent from the file keeps the value set here.
func defaults() Config {
	return Config{
		MaxProcessAllIterations: 1000,
		PersistenceDir:          "data",
		MinimumFreeSpaceGB:      1,
		EnableCompression:       true,
		EnableEncryption:        false,
	}
}

// Load reads and parses a YAML config file at path, filling in defaults for
// any field left unset in the file.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.MaxProcessAllIterations == 0 {
		cfg.MaxProcessAllIterations = 1000
	}
	if cfg.PersistenceDir == "" {
		cfg.PersistenceDir = "data"
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no config file is
// supplied.
func Default() Config {
	return defaults()
}
