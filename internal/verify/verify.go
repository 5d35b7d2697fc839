// Package verify compares a live directory against a stored manifest.
//
// Verification runs two independent passes. The first walks the manifest and
// re-hashes every recorded file that still exists, reporting MISSING and
// CHANGED entries. The second walks the live tree and reports ADDED entries
// for paths the manifest does not know. Drift is a normal result, not an
// error: callers inspect Report.Match and Report.Differences.
//
// The target directory is only ever read.
package verify

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/blackwell-systems/snapledger/internal/hasher"
	"github.com/blackwell-systems/snapledger/internal/manifest"
)

// Kind classifies a difference.
type Kind string

const (
	Missing Kind = "MISSING"
	Changed Kind = "CHANGED"
	Added   Kind = "ADDED"
)

// Difference is one anomaly found during verification.
type Difference struct {
	Kind     Kind          `json:"kind"`
	Path     string        `json:"path"`
	Expected hasher.Digest `json:"expected,omitempty"`
	Actual   hasher.Digest `json:"actual,omitempty"`
}

// String formats the difference as "KIND: path".
func (d Difference) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Path)
}

// Report is the outcome of Directory.
type Report struct {
	Match       bool               `json:"match"`
	Differences []Difference       `json:"differences"`
	Unreadable  []manifest.Skipped `json:"unreadable,omitempty"`
	Checked     int                `json:"checked"`
}

// Count returns the number of differences of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, d := range r.Differences {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Summary renders a one-line description of the report.
func (r *Report) Summary() string {
	if r.Match {
		return fmt.Sprintf("%d files match", r.Checked)
	}
	return fmt.Sprintf("%d difference(s): %d missing, %d changed, %d added, %d unreadable",
		len(r.Differences), r.Count(Missing), r.Count(Changed), r.Count(Added), len(r.Unreadable))
}

// Options configures Directory.
type Options struct {
	Logger *slog.Logger
}

// Directory verifies target against m.
func Directory(m *manifest.Manifest, target string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("target %s: %w", target, manifest.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat target %s: %w", target, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target %s is not a directory", target)
	}

	alg := m.Algorithm
	if alg == "" {
		alg = hasher.Default
	}

	report := &Report{Differences: []Difference{}}

	// Pass 1: removals and modifications, in manifest order.
	for _, rec := range m.Files {
		path := filepath.Join(target, filepath.FromSlash(rec.Path))
		fi, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				report.Differences = append(report.Differences, Difference{
					Kind: Missing, Path: rec.Path, Expected: rec.Digest,
				})
				continue
			}
			report.Unreadable = append(report.Unreadable, manifest.Skipped{Path: rec.Path, Reason: err.Error()})
			continue
		}
		if !fi.Mode().IsRegular() {
			// A directory or link now sits where a regular file was recorded.
			report.Differences = append(report.Differences, Difference{
				Kind: Changed, Path: rec.Path, Expected: rec.Digest,
			})
			continue
		}

		digest, _, err := hasher.File(alg, path)
		if err != nil {
			logger.Warn("cannot hash recorded file", "path", rec.Path, "error", err)
			report.Unreadable = append(report.Unreadable, manifest.Skipped{Path: rec.Path, Reason: err.Error()})
			continue
		}
		report.Checked++
		if digest != rec.Digest {
			report.Differences = append(report.Differences, Difference{
				Kind: Changed, Path: rec.Path, Expected: rec.Digest, Actual: digest,
			})
		}
	}

	// Pass 2: additions, from an independent walk of the live tree.
	entries, skipped, err := manifest.Walk(target, manifest.Selector{Include: m.Include, Exclude: m.Exclude})
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		logger.Warn("cannot read live path", "path", s.Path, "reason", s.Reason)
		report.Unreadable = append(report.Unreadable, s)
	}

	var added []Difference
	for _, e := range entries {
		if _, ok := m.Lookup(e.Rel); !ok {
			added = append(added, Difference{Kind: Added, Path: e.Rel})
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Path < added[j].Path })
	report.Differences = append(report.Differences, added...)

	report.Match = len(report.Differences) == 0 && len(report.Unreadable) == 0

	logger.Debug("verification finished",
		"target", target, "checked", report.Checked, "differences", len(report.Differences))

	return report, nil
}
