// Package archive packages a directory tree into a compressed tar container
// with a manifest sidecar, and restores containers after checking every
// entry against that manifest.
//
// Each file is read exactly once while packaging: its bytes are teed into a
// spool file and a per-file hasher, then copied from the spool into the tar
// stream, and the whole container stream is teed into a second hasher. The
// container starts with a PAX global header carrying the label, source and
// selection, so the container digest that names the snapshot covers what
// the tree was taken from as well as its contents.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackwell-systems/snapledger/internal/hasher"
	"github.com/blackwell-systems/snapledger/internal/manifest"
)

// IDPrefix starts every snapshot id.
const IDPrefix = "snap-"

// idDigestChars is how many hex characters of the container digest go into
// an id.
const idDigestChars = 12

// PAX records of the identity header that opens every container.
const (
	identityName = "snapledger"
	paxLabel     = "SNAPLEDGER.label"
	paxSource    = "SNAPLEDGER.source"
	paxInclude   = "SNAPLEDGER.include"
	paxExclude   = "SNAPLEDGER.exclude"
	patternSep   = "\n"
)

// ErrIntegrityMismatch is returned when an archive does not match its
// manifest.
var ErrIntegrityMismatch = errors.New("archive does not match manifest")

// Packager writes snapshot containers into a directory.
type Packager struct {
	dir         string
	compression Compression
	algorithm   hasher.Algorithm
	exclude     []string
	logger      *slog.Logger
	now         func() time.Time
	progress    func(done, total int)
	open        func(name string) (fs.File, error)
}

// Option configures a Packager.
type Option func(*Packager)

// WithCompression sets the container codec.
func WithCompression(c Compression) Option {
	return func(p *Packager) { p.compression = c }
}

// WithAlgorithm sets the digest algorithm for files and the container.
func WithAlgorithm(a hasher.Algorithm) Option {
	return func(p *Packager) { p.algorithm = a }
}

// WithExclude overrides the excluded control-directory names.
func WithExclude(names []string) Option {
	return func(p *Packager) { p.exclude = names }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Packager) { p.logger = l }
}

// WithClock sets the clock used for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// WithProgress registers a callback invoked after each file is stored.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Packager) { p.progress = fn }
}

// NewPackager returns a Packager writing into dir.
func NewPackager(dir string, opts ...Option) *Packager {
	p := &Packager{
		dir:         dir,
		compression: Gzip,
		algorithm:   hasher.Default,
		now:         time.Now,
		open:        func(name string) (fs.File, error) { return os.Open(name) },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Dir returns the directory containers are written to.
func (p *Packager) Dir() string {
	return p.dir
}

// Result describes a packaged snapshot. It is not registered yet.
type Result struct {
	ID           string
	ArchivePath  string
	ManifestPath string
	Digest       hasher.Digest
	Size         int64
	Manifest     *manifest.Manifest
	Skipped      []manifest.Skipped
}

// Package archives the files under base that match include (all files when
// include is empty). Unreadable files are skipped and reported. Label
// defaults to the base name of base.
func (p *Packager) Package(base string, include []string, label string) (*Result, error) {
	sel := manifest.Selector{Include: include, Exclude: p.exclude}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", base, err)
	}

	entries, skipped, err := manifest.Walk(abs, sel)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		p.logger.Warn("skipping unreadable path", "path", s.Path, "reason", s.Reason)
	}

	if label == "" {
		label = filepath.Base(abs)
	}
	m := &manifest.Manifest{
		Label:     label,
		Source:    abs,
		CreatedAt: p.now().UTC(),
		Algorithm: p.algorithm,
		Include:   include,
		Exclude:   p.exclude,
		Files:     make(manifest.Files, 0, len(entries)),
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	container := hasher.NewWriter(p.algorithm)
	cw, err := p.compression.newWriter(io.MultiWriter(tmp, container))
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(cw)

	if err := tw.WriteHeader(identityHeader(m)); err != nil {
		return nil, fmt.Errorf("failed to write identity header: %w", err)
	}

	spool, err := os.CreateTemp(p.dir, ".spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	for i, e := range entries {
		rec, ok, err := p.addFile(tw, spool, e)
		if err != nil {
			return nil, err
		}
		if !ok {
			skipped = append(skipped, manifest.Skipped{Path: e.Rel, Reason: rec.reason})
		} else {
			m.Add(rec.FileRecord)
		}
		if p.progress != nil {
			p.progress(i+1, len(entries))
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := cw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish %s stream: %w", p.compression, err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	digest := container.Digest()
	id := IDPrefix + digest.Short(idDigestChars)
	archivePath := filepath.Join(p.dir, id+p.compression.Extension())
	manifestPath := filepath.Join(p.dir, id+manifest.Suffix)

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return nil, fmt.Errorf("failed to set archive permissions: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return nil, fmt.Errorf("failed to rename archive into place: %w", err)
	}
	committed = true

	if err := manifest.Save(manifestPath, m); err != nil {
		return nil, err
	}

	p.logger.Debug("archive written",
		"id", id, "path", archivePath, "files", m.FileCount, "bytes", container.Size())

	return &Result{
		ID:           id,
		ArchivePath:  archivePath,
		ManifestPath: manifestPath,
		Digest:       digest,
		Size:         container.Size(),
		Manifest:     m,
		Skipped:      skipped,
	}, nil
}

type storedFile struct {
	manifest.FileRecord
	reason string
}

// identityHeader is the global header written before any file entry.
func identityHeader(m *manifest.Manifest) *tar.Header {
	records := map[string]string{
		paxLabel:  m.Label,
		paxSource: m.Source,
	}
	if len(m.Include) > 0 {
		records[paxInclude] = strings.Join(m.Include, patternSep)
	}
	if len(m.Exclude) > 0 {
		records[paxExclude] = strings.Join(m.Exclude, patternSep)
	}
	return &tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: identityName, PAXRecords: records}
}

// addFile reads one file into spool while hashing it, then writes the
// entry from the spool. A file that cannot be opened or read is reported
// with ok=false and nothing is written, so the entry always holds exactly
// the bytes that were hashed. Errors writing the tar stream are returned.
func (p *Packager) addFile(tw *tar.Writer, spool *os.File, e manifest.Entry) (storedFile, bool, error) {
	f, err := p.open(e.Abs)
	if err != nil {
		p.logger.Warn("skipping unreadable file", "path", e.Rel, "error", err)
		return storedFile{reason: err.Error()}, false, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		p.logger.Warn("skipping unreadable file", "path", e.Rel, "error", err)
		return storedFile{reason: err.Error()}, false, nil
	}
	if !info.Mode().IsRegular() {
		return storedFile{reason: "no longer a regular file"}, false, nil
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return storedFile{}, false, fmt.Errorf("failed to rewind spool: %w", err)
	}
	if err := spool.Truncate(0); err != nil {
		return storedFile{}, false, fmt.Errorf("failed to reset spool: %w", err)
	}

	fh := hasher.NewWriter(p.algorithm)
	size, err := io.Copy(io.MultiWriter(spool, fh), f)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && pathErr.Path == spool.Name() {
			return storedFile{}, false, fmt.Errorf("failed to spool %s: %w", e.Rel, err)
		}
		p.logger.Warn("skipping unreadable file", "path", e.Rel, "error", err)
		return storedFile{reason: err.Error()}, false, nil
	}
	if size != info.Size() {
		p.logger.Debug("file size changed since stat", "path", e.Rel, "stat", info.Size(), "read", size)
	}

	hdr := &tar.Header{
		Name:     e.Rel,
		Size:     size,
		Mode:     0644,
		ModTime:  info.ModTime().UTC().Truncate(time.Second),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return storedFile{}, false, fmt.Errorf("failed to write header for %s: %w", e.Rel, err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return storedFile{}, false, fmt.Errorf("failed to rewind spool: %w", err)
	}
	if _, err := io.CopyN(tw, spool, size); err != nil {
		return storedFile{}, false, fmt.Errorf("failed to archive %s: %w", e.Rel, err)
	}

	return storedFile{FileRecord: manifest.FileRecord{Path: e.Rel, Digest: fh.Digest(), Size: size}}, true, nil
}
