// Package config loads the snapledger configuration file.
//
// The file is located by, in order: an explicit path (the --config flag),
// the SNAPLEDGER_CONFIG environment variable, or config.yaml in the XDG
// config directory. A missing file at the default location yields the
// defaults; a missing file that was asked for explicitly is an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/hasher"
)

// EnvVar names the environment variable holding a config file path.
const EnvVar = "SNAPLEDGER_CONFIG"

// FileName is the config file looked up in Dir.
const FileName = "config.yaml"

// Config holds operator settings.
type Config struct {
	// Root is the storage root holding archives and the database.
	// Default: ~/.snapledger
	Root string `yaml:"root"`

	// Algorithm is the digest algorithm for new snapshots (sha256, blake3).
	Algorithm string `yaml:"algorithm"`

	// Compression is the container codec for new snapshots
	// (gzip, zstd, lz4, none).
	Compression string `yaml:"compression"`

	// Include holds default include patterns for create.
	Include []string `yaml:"include,omitempty"`

	// Exclude overrides the control-directory names never snapshotted.
	Exclude []string `yaml:"exclude,omitempty"`

	// DeployedBy is recorded on deploys that name no deployer.
	DeployedBy string `yaml:"deployed_by"`

	// Environment is the default deploy environment.
	Environment string `yaml:"environment"`
}

// Paths are the locations derived from Root.
type Paths struct {
	Root     string
	Archives string
	Database string
}

// Dir returns the snapledger config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/snapledger if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "snapledger"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Root:        filepath.Join(homeDir, ".snapledger"),
		Algorithm:   hasher.Default.String(),
		Compression: archive.Gzip.String(),
		DeployedBy:  "ci",
		Environment: "production",
	}
}

// Load reads the config file at path, or the default location when path is
// empty, on top of Default.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvVar)
		explicit = path != ""
	}
	if !explicit {
		dir, err := Dir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(dir, FileName)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.Root = expandHome(cfg.Root)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown algorithms and compressions and an empty root.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if _, err := hasher.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if _, err := archive.ParseCompression(c.Compression); err != nil {
		return err
	}
	for _, ex := range c.Exclude {
		if ex == "" || strings.Contains(ex, "/") {
			return fmt.Errorf("exclude entries must be single path segments, got %q", ex)
		}
	}
	return nil
}

// Paths derives the storage layout under Root.
func (c *Config) Paths() Paths {
	return Paths{
		Root:     c.Root,
		Archives: filepath.Join(c.Root, "archives"),
		Database: filepath.Join(c.Root, "snapledger.db"),
	}
}

// HashAlgorithm returns the configured digest algorithm.
func (c *Config) HashAlgorithm() hasher.Algorithm {
	a, err := hasher.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return hasher.Default
	}
	return a
}

// ArchiveCompression returns the configured container codec.
func (c *Config) ArchiveCompression() archive.Compression {
	comp, err := archive.ParseCompression(c.Compression)
	if err != nil {
		return archive.Gzip
	}
	return comp
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
