package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat is fixed width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Queries runs statements against the database or an open transaction.
// While a transaction is open, use only the Queries handed to WithTx: the
// store holds a single connection.
type Queries struct {
	q querier
}

// Snapshot operations

const snapshotColumns = `id, label, source, manifest_path, archive_path, algorithm, digest,
	size_bytes, file_count, total_size, created_at, verified`

// UpsertSnapshot inserts a snapshot or, when the id exists, replaces its
// descriptive fields. The verified flag of an existing row is kept.
func (s *Queries) UpsertSnapshot(snap *Snapshot) error {
	query := `
		INSERT INTO snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			source = excluded.source,
			manifest_path = excluded.manifest_path,
			archive_path = excluded.archive_path,
			algorithm = excluded.algorithm,
			digest = excluded.digest,
			size_bytes = excluded.size_bytes,
			file_count = excluded.file_count,
			total_size = excluded.total_size,
			created_at = excluded.created_at
	`

	_, err := s.q.Exec(query,
		snap.ID,
		snap.Label,
		snap.Source,
		snap.ManifestPath,
		snap.ArchivePath,
		snap.Algorithm,
		snap.Digest,
		snap.SizeBytes,
		snap.FileCount,
		snap.TotalSize,
		formatTime(snap.CreatedAt),
		snap.Verified,
	)
	if err != nil {
		return wrap(err, "failed to upsert snapshot %s", snap.ID)
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*Snapshot, error) {
	var snap Snapshot
	var createdAt string

	err := row.Scan(
		&snap.ID,
		&snap.Label,
		&snap.Source,
		&snap.ManifestPath,
		&snap.ArchivePath,
		&snap.Algorithm,
		&snap.Digest,
		&snap.SizeBytes,
		&snap.FileCount,
		&snap.TotalSize,
		&createdAt,
		&snap.Verified,
	)
	if err != nil {
		return nil, err
	}

	snap.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at for snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// GetSnapshot retrieves a snapshot by id.
func (s *Queries) GetSnapshot(id string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE id = ?`

	snap, err := scanSnapshot(s.q.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get snapshot %s", id)
	}
	return snap, nil
}

// FindSnapshotByManifest returns the snapshot registered with the given
// manifest path.
func (s *Queries) FindSnapshotByManifest(path string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE manifest_path = ? ORDER BY created_at DESC LIMIT 1`

	snap, err := scanSnapshot(s.q.QueryRow(query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot with manifest %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to find snapshot for manifest %s", path)
	}
	return snap, nil
}

// ListSnapshots returns all snapshots ordered by creation time (newest first).
func (s *Queries) ListSnapshots() ([]*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY created_at DESC, id`

	rows, err := s.q.Query(query)
	if err != nil {
		return nil, wrap(err, "failed to list snapshots")
	}
	defer rows.Close()

	var snapshots []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// SetVerified updates the verified flag of a snapshot.
func (s *Queries) SetVerified(id string, verified bool) error {
	res, err := s.q.Exec(`UPDATE snapshots SET verified = ? WHERE id = ?`, verified, id)
	if err != nil {
		return wrap(err, "failed to update snapshot %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountSnapshots returns the number of snapshots and how many are verified.
func (s *Queries) CountSnapshots() (total, verified int, err error) {
	err = s.q.QueryRow(`SELECT COUNT(*), COALESCE(SUM(verified), 0) FROM snapshots`).Scan(&total, &verified)
	if err != nil {
		return 0, 0, wrap(err, "failed to count snapshots")
	}
	return total, verified, nil
}

// Audit log operations

// AppendAudit adds an audit entry and returns its id. A zero At is set to
// the current time.
func (s *Queries) AppendAudit(entry *AuditEntry) (int64, error) {
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	res, err := s.q.Exec(`
		INSERT INTO audit_log (snapshot_id, action, result, detail, at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.SnapshotID, entry.Action, entry.Result, entry.Detail, formatTime(at))
	if err != nil {
		return 0, wrap(err, "failed to append audit entry for %s", entry.SnapshotID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get audit entry id: %w", err)
	}
	return id, nil
}

// ListAudit returns audit entries, newest first. An empty snapshotID lists
// every entry; limit <= 0 means no limit.
func (s *Queries) ListAudit(snapshotID string, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, snapshot_id, action, result, detail, at FROM audit_log`
	var args []any
	if snapshotID != "" {
		query += ` WHERE snapshot_id = ?`
		args = append(args, snapshotID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, wrap(err, "failed to list audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		if err := rows.Scan(&e.ID, &e.SnapshotID, &e.Action, &e.Result, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.At, err = parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %d: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}
