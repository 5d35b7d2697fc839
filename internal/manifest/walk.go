package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Selector decides which files under a root take part in a snapshot.
type Selector struct {
	// Include holds doublestar patterns matched against the slash-separated
	// relative path. Empty means every regular file.
	Include []string
	// Exclude holds control-directory segment names. Empty means
	// DefaultExcludes.
	Exclude []string
}

// Validate checks that every include pattern is well formed.
func (s Selector) Validate() error {
	for _, p := range s.Include {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid include pattern: %q", p)
		}
	}
	return nil
}

func (s Selector) excludes() []string {
	if len(s.Exclude) == 0 {
		return DefaultExcludes
	}
	return s.Exclude
}

// Matches reports whether a relative slash path is selected.
func (s Selector) Matches(rel string) bool {
	if IsExcluded(rel, s.excludes()) {
		return false
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, p := range s.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// IsExcluded reports whether any segment of rel is one of excludes.
func IsExcluded(rel string, excludes []string) bool {
	for _, seg := range strings.Split(rel, "/") {
		for _, ex := range excludes {
			if seg == ex {
				return true
			}
		}
	}
	return false
}

// Entry is a regular file found by Walk.
type Entry struct {
	Rel string // slash-separated path relative to the root
	Abs string // path on disk
}

// Walk lists every selected regular file under root in lexicographic order
// of relative path. Entries that cannot be read are returned as skipped
// instead of failing the walk. A missing or non-directory root is fatal.
func Walk(root string, sel Selector) ([]Entry, []Skipped, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("directory %s: %w", root, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", root)
	}

	// WalkDir does not descend into a symlinked root.
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	excludes := sel.excludes()
	var entries []Entry
	var skipped []Skipped

	walkErr := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(resolved, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			skipped = append(skipped, Skipped{Path: rel, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel != "." && IsExcluded(d.Name(), excludes) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if sel.Matches(rel) {
			entries = append(entries, Entry{Rel: rel, Abs: path})
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	return entries, skipped, nil
}
