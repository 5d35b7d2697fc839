package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/snapledger/internal/catalog"
	"github.com/blackwell-systems/snapledger/internal/config"
	"github.com/blackwell-systems/snapledger/internal/ledger"
	"github.com/blackwell-systems/snapledger/internal/manifest"
	"github.com/blackwell-systems/snapledger/internal/store"
)

// session bundles what a command needs: config, logger, store and the
// services built on it.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	st      *store.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger()

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		st:      st,
		ledger:  ledger.New(st, ledger.WithLogger(logger)),
		catalog: catalog.New(st, catalog.WithDeployer(cfg.DeployedBy), catalog.WithLogger(logger)),
	}, nil
}

func (s *session) Close() error {
	return s.st.Close()
}

// environment applies the configured default to an empty --env.
func (s *session) environment(env string) string {
	if env != "" {
		return env
	}
	return s.cfg.Environment
}

// resolveManifest accepts either a manifest file path or a snapshot id. The
// snapshot is nil when a manifest file is not registered.
func (s *session) resolveManifest(arg string) (*manifest.Manifest, *store.Snapshot, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		m, err := manifest.Load(arg)
		if err != nil {
			return nil, nil, err
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve %s: %w", arg, err)
		}
		snap, err := s.ledger.FindByManifest(abs)
		if errors.Is(err, store.ErrNotFound) {
			return m, nil, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return m, snap, nil
	}

	snap, err := s.ledger.Get(arg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%q is neither a manifest file nor a registered snapshot: %w", arg, err)
	}
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.Load(snap.ManifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
	}
	return m, snap, nil
}

// orphanManifests lists manifest files in dir that no registered snapshot
// refers to.
func orphanManifests(dir string, snapshots []*store.Snapshot) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+manifest.Suffix))
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		known[filepath.Clean(snap.ManifestPath)] = true
	}

	var orphans []string
	for _, p := range paths {
		if !known[filepath.Clean(p)] {
			orphans = append(orphans, p)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

// confirm asks a yes/no question on in. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
