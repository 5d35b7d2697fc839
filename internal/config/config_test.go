package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/hasher"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDir_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error: %v", err)
	}
	if dir != "/tmp/xdg/snapledger" {
		t.Errorf("Dir() = %s, want /tmp/xdg/snapledger", dir)
	}
}

func TestLoad_DefaultFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error for missing default file: %v", err)
	}
	if cfg.Algorithm != "sha256" || cfg.Compression != "gzip" {
		t.Errorf("defaults = %s/%s, want sha256/gzip", cfg.Algorithm, cfg.Compression)
	}
	if filepath.Base(cfg.Root) != ".snapledger" {
		t.Errorf("Root = %s, want ~/.snapledger", cfg.Root)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail when an explicit config file is missing")
	}
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
root: `+root+`
algorithm: blake3
compression: zstd
include:
  - "**/*.db"
exclude: [".git", "node_modules"]
deployed_by: release-bot
environment: staging
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Root != root {
		t.Errorf("Root = %s, want %s", cfg.Root, root)
	}
	if cfg.HashAlgorithm() != hasher.BLAKE3 {
		t.Errorf("HashAlgorithm() = %s, want blake3", cfg.HashAlgorithm())
	}
	if cfg.ArchiveCompression() != archive.Zstd {
		t.Errorf("ArchiveCompression() = %s, want zstd", cfg.ArchiveCompression())
	}
	if len(cfg.Include) != 1 || len(cfg.Exclude) != 2 {
		t.Errorf("Include = %v, Exclude = %v", cfg.Include, cfg.Exclude)
	}
	if cfg.DeployedBy != "release-bot" || cfg.Environment != "staging" {
		t.Errorf("DeployedBy = %s, Environment = %s", cfg.DeployedBy, cfg.Environment)
	}

	p := cfg.Paths()
	if p.Archives != filepath.Join(root, "archives") || p.Database != filepath.Join(root, "snapledger.db") {
		t.Errorf("Paths() = %+v", p)
	}
}

func TestLoad_EnvVar(t *testing.T) {
	path := writeConfig(t, "compression: lz4\n")
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Compression != "lz4" {
		t.Errorf("Compression = %s, want lz4", cfg.Compression)
	}
	if cfg.Algorithm != "sha256" {
		t.Errorf("unset fields should keep defaults, Algorithm = %s", cfg.Algorithm)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error for empty file: %v", err)
	}
	if cfg.Compression != "gzip" {
		t.Errorf("Compression = %s, want default gzip", cfg.Compression)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown algorithm", "algorithm: md5\n"},
		{"unknown compression", "compression: bzip2\n"},
		{"unknown field", "colour: blue\n"},
		{"bad exclude", "exclude: [\"a/b\"]\n"},
		{"malformed yaml", "root: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandHome(~/data) = %s", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("expandHome(/abs) = %s", got)
	}
}
