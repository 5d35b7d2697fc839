package manifest

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/snapledger/internal/hasher"
)

// Options configures Build.
type Options struct {
	Label     string
	Include   []string
	Exclude   []string
	Algorithm hasher.Algorithm
	Now       func() time.Time
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Algorithm == "" {
		o.Algorithm = hasher.Default
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Build walks root and records the digest and size of every selected
// regular file. Files that cannot be read are skipped and reported in the
// result rather than failing the build.
func Build(root string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	sel := Selector{Include: opts.Include, Exclude: opts.Exclude}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	entries, skipped, err := Walk(abs, sel)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		opts.Logger.Warn("skipping unreadable path", "path", s.Path, "reason", s.Reason)
	}

	label := opts.Label
	if label == "" {
		label = filepath.Base(abs)
	}

	m := &Manifest{
		Label:     label,
		Source:    abs,
		CreatedAt: opts.Now().UTC(),
		Algorithm: opts.Algorithm,
		Include:   opts.Include,
		Exclude:   opts.Exclude,
		Files:     make(Files, 0, len(entries)),
	}

	for _, e := range entries {
		digest, size, err := hasher.File(opts.Algorithm, e.Abs)
		if err != nil {
			opts.Logger.Warn("skipping unreadable file", "path", e.Rel, "error", err)
			skipped = append(skipped, Skipped{Path: e.Rel, Reason: err.Error()})
			continue
		}
		m.Add(FileRecord{Path: e.Rel, Digest: digest, Size: size})
	}

	opts.Logger.Debug("manifest built",
		"source", abs, "files", m.FileCount, "bytes", m.TotalSize, "skipped", len(skipped))

	return &Result{Manifest: m, Skipped: skipped}, nil
}
