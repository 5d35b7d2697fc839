// Package ledger registers snapshots and keeps an append-only record of
// every registration and verification.
//
// Each state change (a registration, or a verification and the flag update
// it causes) is written in a single transaction together with its audit
// entry, so the registry and the audit log never disagree.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blackwell-systems/snapledger/internal/hasher"
	"github.com/blackwell-systems/snapledger/internal/store"
)

// ErrIDCollision is returned when a snapshot id is already registered for a
// container with a different digest.
var ErrIDCollision = errors.New("snapshot id already registered for a different container")

// Ledger is the audit ledger over a store.
type Ledger struct {
	st     *store.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New returns a Ledger backed by st. The schema must already exist.
func New(st *store.Store, opts ...Option) *Ledger {
	l := &Ledger{st: st, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}

// Register records a snapshot and appends a register/ok entry. An existing
// id is updated in place; its verified flag is kept. An existing id whose
// container digest differs is refused with ErrIDCollision.
func (l *Ledger) Register(snap *store.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("cannot register snapshot without an id")
	}

	err := l.st.WithTx(func(q *store.Queries) error {
		existing, err := q.GetSnapshot(snap.ID)
		switch {
		case err == nil && existing.Digest != snap.Digest:
			return ErrIDCollision
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := q.UpsertSnapshot(snap); err != nil {
			return err
		}
		_, err = q.AppendAudit(&store.AuditEntry{
			SnapshotID: snap.ID,
			Action:     store.ActionRegister,
			Result:     store.ResultOK,
			Detail:     fmt.Sprintf("%d files, %d bytes", snap.FileCount, snap.SizeBytes),
			At:         l.now(),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", snap.ID, err)
	}

	l.logger.Debug("snapshot registered", "id", snap.ID, "archive", snap.ArchivePath)
	return nil
}

// Verify hashes data with the snapshot's algorithm and compares the result
// to the registered container digest. The outcome updates the verified flag
// and is appended to the audit log. An unknown id returns store.ErrNotFound.
func (l *Ledger) Verify(id string, data io.Reader) (bool, error) {
	snap, err := l.st.GetSnapshot(id)
	if err != nil {
		return false, err
	}

	alg, err := hasher.ParseAlgorithm(snap.Algorithm)
	if err != nil {
		return false, fmt.Errorf("snapshot %s: %w", id, err)
	}

	digest, size, err := hasher.Sum(alg, data)
	if err != nil {
		return false, fmt.Errorf("failed to hash data for %s: %w", id, err)
	}

	pass := digest == hasher.Digest(snap.Digest)
	detail := fmt.Sprintf("digest %s", digest.Short(12))
	if !pass {
		detail = fmt.Sprintf("digest mismatch: expected %s, got %s (%d bytes)",
			hasher.Digest(snap.Digest).Short(12), digest.Short(12), size)
	}

	if err := l.RecordVerification(id, pass, detail); err != nil {
		return false, err
	}
	return pass, nil
}

// VerifyArchive verifies the registered archive file of a snapshot. A
// missing archive file is recorded as a failed verification.
func (l *Ledger) VerifyArchive(id string) (bool, error) {
	snap, err := l.st.GetSnapshot(id)
	if err != nil {
		return false, err
	}

	f, err := os.Open(snap.ArchivePath)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("archive missing", "id", id, "path", snap.ArchivePath)
		if err := l.RecordVerification(id, false, "archive missing: "+snap.ArchivePath); err != nil {
			return false, err
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open archive for %s: %w", id, err)
	}
	defer f.Close()

	return l.Verify(id, f)
}

// RecordVerification stores the outcome of a verification performed
// elsewhere, such as a directory comparison.
func (l *Ledger) RecordVerification(id string, pass bool, detail string) error {
	result := store.ResultFail
	if pass {
		result = store.ResultPass
	}

	err := l.st.WithTx(func(q *store.Queries) error {
		if err := q.SetVerified(id, pass); err != nil {
			return err
		}
		_, err := q.AppendAudit(&store.AuditEntry{
			SnapshotID: id,
			Action:     store.ActionVerify,
			Result:     result,
			Detail:     detail,
			At:         l.now(),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record verification of %s: %w", id, err)
	}

	l.logger.Debug("verification recorded", "id", id, "result", result)
	return nil
}

// Report summarizes the registry.
type Report struct {
	Total      int
	Verified   int
	Unverified int
	Snapshots  []*store.Snapshot
}

// Report returns aggregate counts and every snapshot, newest first.
func (l *Ledger) Report() (*Report, error) {
	total, verified, err := l.st.CountSnapshots()
	if err != nil {
		return nil, err
	}
	snaps, err := l.st.ListSnapshots()
	if err != nil {
		return nil, err
	}
	return &Report{
		Total:      total,
		Verified:   verified,
		Unverified: total - verified,
		Snapshots:  snaps,
	}, nil
}

// Log returns audit entries, newest first. An empty id returns entries for
// every snapshot.
func (l *Ledger) Log(id string, limit int) ([]*store.AuditEntry, error) {
	return l.st.ListAudit(id, limit)
}

// Get returns a registered snapshot.
func (l *Ledger) Get(id string) (*store.Snapshot, error) {
	return l.st.GetSnapshot(id)
}

// FindByManifest returns the snapshot registered with a manifest path.
func (l *Ledger) FindByManifest(path string) (*store.Snapshot, error) {
	return l.st.FindSnapshotByManifest(path)
}

// List returns every registered snapshot, newest first.
func (l *Ledger) List() ([]*store.Snapshot, error) {
	return l.st.ListSnapshots()
}
