package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Version operations

const versionColumns = `id, service, version, environment, commit_sha, changelog,
	deployed_by, status, rollback_of, deployed_at`

func scanVersion(row interface{ Scan(...any) error }) (*VersionRecord, error) {
	var v VersionRecord
	var deployedAt string

	err := row.Scan(
		&v.ID,
		&v.Service,
		&v.Version,
		&v.Environment,
		&v.CommitSHA,
		&v.Changelog,
		&v.DeployedBy,
		&v.Status,
		&v.RollbackOf,
		&deployedAt,
	)
	if err != nil {
		return nil, err
	}

	v.DeployedAt, err = parseTime(deployedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse deployed_at for version %d: %w", v.ID, err)
	}
	return &v, nil
}

// InsertVersion adds a version record and sets its ID.
func (s *Queries) InsertVersion(v *VersionRecord) error {
	res, err := s.q.Exec(`
		INSERT INTO versions
		(service, version, environment, commit_sha, changelog, deployed_by, status, rollback_of, deployed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.Service,
		v.Version,
		v.Environment,
		v.CommitSHA,
		v.Changelog,
		v.DeployedBy,
		v.Status,
		v.RollbackOf,
		formatTime(v.DeployedAt),
	)
	if err != nil {
		return wrap(err, "failed to insert version %s %s", v.Service, v.Version)
	}

	v.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get version id: %w", err)
	}
	return nil
}

// GetVersion retrieves a version record by id.
func (s *Queries) GetVersion(id int64) (*VersionRecord, error) {
	v, err := scanVersion(s.q.QueryRow(`SELECT `+versionColumns+` FROM versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get version %d", id)
	}
	return v, nil
}

// GetActiveVersion returns the active record for service in env.
func (s *Queries) GetActiveVersion(service, env string) (*VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM versions
		WHERE service = ? AND environment = ? AND status = ?`

	v, err := scanVersion(s.q.QueryRow(query, service, env, StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active version of %s in %s: %w", service, env, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get active version of %s in %s", service, env)
	}
	return v, nil
}

// GetLatestSuperseded returns the most recently deployed superseded record
// for service in env.
func (s *Queries) GetLatestSuperseded(service, env string) (*VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM versions
		WHERE service = ? AND environment = ? AND status = ?
		ORDER BY deployed_at DESC, id DESC
		LIMIT 1`

	v, err := scanVersion(s.q.QueryRow(query, service, env, StatusSuperseded))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("superseded version of %s in %s: %w", service, env, ErrNotFound)
	}
	if err != nil {
		return nil, wrap(err, "failed to get superseded version of %s in %s", service, env)
	}
	return v, nil
}

// SetVersionStatus changes the status and rollback marker of a record.
func (s *Queries) SetVersionStatus(id int64, status, rollbackOf string) error {
	res, err := s.q.Exec(`UPDATE versions SET status = ?, rollback_of = ? WHERE id = ?`, status, rollbackOf, id)
	if err != nil {
		return wrap(err, "failed to update version %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update version %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("version %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListVersions returns records newest first. Empty service or env match
// everything.
func (s *Queries) ListVersions(service, env string) ([]*VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE 1 = 1`
	var args []any
	if service != "" {
		query += ` AND service = ?`
		args = append(args, service)
	}
	if env != "" {
		query += ` AND environment = ?`
		args = append(args, env)
	}
	query += ` ORDER BY deployed_at DESC, id DESC`

	return s.queryVersions(query, args...)
}

// ListActiveVersions returns every active record ordered by service and
// environment.
func (s *Queries) ListActiveVersions() ([]*VersionRecord, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE status = ? ORDER BY service, environment`
	return s.queryVersions(query, StatusActive)
}

func (s *Queries) queryVersions(query string, args ...any) ([]*VersionRecord, error) {
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, wrap(err, "failed to list versions")
	}
	defer rows.Close()

	var versions []*VersionRecord
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}
