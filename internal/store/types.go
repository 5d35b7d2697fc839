package store

import "time"

// Snapshot is a registered archive and its manifest.
type Snapshot struct {
	ID           string
	Label        string
	Source       string
	ManifestPath string
	ArchivePath  string
	Algorithm    string
	Digest       string // of the archive container bytes
	SizeBytes    int64  // container size
	FileCount    int
	TotalSize    int64 // sum of file sizes inside the container
	CreatedAt    time.Time
	Verified     bool
}

// Audit actions and results.
const (
	ActionRegister = "register"
	ActionVerify   = "verify"

	ResultOK   = "ok"
	ResultPass = "pass"
	ResultFail = "fail"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID         int64
	SnapshotID string
	Action     string
	Result     string
	Detail     string
	At         time.Time
}

// Version statuses.
const (
	StatusActive     = "active"
	StatusSuperseded = "superseded"
	StatusRolledBack = "rolled-back"
)

// VersionRecord is one deployment of a service version to an environment.
type VersionRecord struct {
	ID          int64
	Service     string
	Version     string
	Environment string
	CommitSHA   string
	Changelog   string
	DeployedBy  string
	Status      string
	RollbackOf  string // version this record replaced when restored by a rollback
	DeployedAt  time.Time
}
