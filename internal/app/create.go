package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/archive"
	"github.com/blackwell-systems/snapledger/internal/hasher"
	"github.com/blackwell-systems/snapledger/internal/ledger"
	"github.com/blackwell-systems/snapledger/internal/output"
)

// presets are named include sets for common file groups.
var presets = map[string][]string{
	"config": {"**/*.db", "**/*.json", "**/*.yaml", "**/*.toml"},
}

var (
	createInclude     []string
	createCompression string
	createAlgorithm   string
	createPreset      string

	createCmd = &cobra.Command{
		Use:   "create <source> [label]",
		Short: "Archive a directory and register the snapshot",
		Long: `Archive the files under <source> into a single compressed container, write
its manifest next to it, and register the snapshot in the ledger.

The snapshot id is derived from the container's digest, which covers the
source path and label as well as the files, so archiving the same tree from
the same place with the same settings yields the same id. Files that cannot be
read are skipped and listed; control directories such as .git are never
included.

The label defaults to the base name of <source>.`,
		Example: `  # Archive a whole directory
  snapledger create /etc/myapp

  # Only configuration files, zstd compressed, BLAKE3 digests
  snapledger create ./deploy release-42 --preset config --compression zstd --algorithm blake3

  # Explicit include patterns
  snapledger create ./data --include '**/*.db' --include 'schema/*.sql'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runCreate,
	}
)

func init() {
	createCmd.Flags().StringArrayVar(&createInclude, "include", nil, "include pattern, relative to source (repeatable, supports **)")
	createCmd.Flags().StringVar(&createCompression, "compression", "", "container compression: gzip, zstd, lz4, none (default from config)")
	createCmd.Flags().StringVar(&createAlgorithm, "algorithm", "", "digest algorithm: sha256, blake3 (default from config)")
	createCmd.Flags().StringVar(&createPreset, "preset", "", "named include set: config")
}

func runCreate(cmd *cobra.Command, args []string) error {
	source := args[0]
	label := ""
	if len(args) > 1 {
		label = args[1]
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	include, err := resolveInclude(createInclude, createPreset, s.cfg.Include)
	if err != nil {
		return err
	}

	compression := s.cfg.ArchiveCompression()
	if createCompression != "" {
		if compression, err = archive.ParseCompression(createCompression); err != nil {
			return err
		}
	}
	algorithm := s.cfg.HashAlgorithm()
	if createAlgorithm != "" {
		if algorithm, err = hasher.ParseAlgorithm(createAlgorithm); err != nil {
			return err
		}
	}

	dir, err := filepath.Abs(s.cfg.Paths().Archives)
	if err != nil {
		return fmt.Errorf("failed to resolve archive directory: %w", err)
	}

	bar := output.NewProgress(0, "Archiving "+source)
	bar.SetWriter(cmd.ErrOrStderr())

	packager := archive.NewPackager(dir,
		archive.WithCompression(compression),
		archive.WithAlgorithm(algorithm),
		archive.WithExclude(s.cfg.Exclude),
		archive.WithLogger(s.logger),
		archive.WithProgress(bar.Update),
	)
	res, err := packager.Package(source, include, label)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if res.Manifest.FileCount+len(res.Skipped) > 0 {
		bar.Finish()
	}

	if err := s.ledger.Register(ledger.FromArchive(res)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "✓ Snapshot created")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nID:        %s\n", res.ID)
	fmt.Fprintf(out, "Label:     %s\n", res.Manifest.Label)
	fmt.Fprintf(out, "Archive:   %s\n", res.ArchivePath)
	fmt.Fprintf(out, "Manifest:  %s\n", res.ManifestPath)
	fmt.Fprintf(out, "Files:     %d (%s)\n", res.Manifest.FileCount, output.FormatSize(res.Manifest.TotalSize))
	fmt.Fprintf(out, "Size:      %s %s\n", output.FormatSize(res.Size), compression)
	fmt.Fprintf(out, "Digest:    %s:%s\n", algorithm, res.Digest)

	if len(res.Skipped) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n⚠ %d file(s) skipped:\n", len(res.Skipped))
		for _, sk := range res.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", sk.Path, sk.Reason)
		}
	}
	return nil
}

// resolveInclude picks explicit patterns first, then a preset, then the
// configured defaults.
func resolveInclude(explicit []string, preset string, configured []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if preset != "" {
		patterns, ok := presets[preset]
		if !ok {
			return nil, fmt.Errorf("unknown preset %q", preset)
		}
		return patterns, nil
	}
	return configured, nil
}
