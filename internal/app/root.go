package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/snapledger/internal/config"
	"github.com/blackwell-systems/snapledger/internal/store"
)

// ErrVerificationFailed is returned by commands whose verification found
// drift or a digest mismatch. The process exits non-zero.
var ErrVerificationFailed = errors.New("verification failed")

var (
	rootDir    string
	configPath string
	verbose    bool

	// RootCmd is the root command for snapledger
	RootCmd = &cobra.Command{
		Use:   "snapledger",
		Short: "Content-addressed snapshots with an audit ledger and version catalog",
		Long: `snapledger captures a directory tree as a content-addressed archive,
records every registration and verification in an append-only audit ledger,
and tracks which version of each service is deployed to each environment.

Quick Start:
  1. snapledger create ./config
  2. snapledger verify <snapshot-id>
  3. snapledger report

Features:
  • SHA-256 or BLAKE3 manifests of every file
  • gzip, zstd or lz4 containers named by their own digest
  • Drift detection: MISSING, CHANGED and ADDED files
  • Verified restore that refuses to write a damaged archive
  • Append-only audit log of every check
  • Deploy history with single-step rollback

Examples:
  # Snapshot a config directory
  snapledger create /etc/myapp myapp

  # Compare the live tree against the snapshot
  snapledger verify snap-3f2a9c1b7e44

  # Re-verify on every change
  snapledger watch snap-3f2a9c1b7e44

  # Record and roll back deployments
  snapledger deploy api 1.4.2 --env staging
  snapledger rollback api --env staging`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "snapledger: content-addressed snapshots with an audit ledger")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'snapledger create <dir>' to take a first snapshot.")
			fmt.Fprintln(out, "Run 'snapledger --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "storage root (default: ~/.snapledger)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/snapledger/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	// Register subcommands
	RootCmd.AddCommand(createCmd)
	RootCmd.AddCommand(verifyCmd)
	RootCmd.AddCommand(verifyArchiveCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(restoreCmd)
	RootCmd.AddCommand(reportCmd)
	RootCmd.AddCommand(logCmd)
	RootCmd.AddCommand(deployCmd)
	RootCmd.AddCommand(rollbackCmd)
	RootCmd.AddCommand(latestCmd)
	RootCmd.AddCommand(versionsCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(contentsCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig reads the config file and applies the --root override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	return cfg, nil
}

// newLogger returns a text logger on stderr. --verbose enables debug output.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the database under the storage root, creating the root
// and the schema if needed.
func openStore(cfg *config.Config) (*store.Store, error) {
	paths := cfg.Paths()
	if err := os.MkdirAll(paths.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	st, err := store.New(paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return st, nil
}
