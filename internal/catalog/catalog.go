// Package catalog tracks which version of each service is deployed to each
// environment and supports a single-step rollback.
//
// At most one record per (service, environment) is active. Records are never
// deleted; deploys and rollbacks only move them between statuses.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blackwell-systems/snapledger/internal/store"
)

// DefaultEnvironment is used when a request names no environment.
const DefaultEnvironment = "production"

var (
	// ErrInvalidState is returned when a transition is not allowed from the
	// current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoActiveVersion means there is nothing deployed to roll back.
	ErrNoActiveVersion = fmt.Errorf("%w: no active version", ErrInvalidState)
	// ErrNoPreviousVersion means there is no version to roll back to.
	ErrNoPreviousVersion = fmt.Errorf("%w: no previous version", ErrInvalidState)
)

// Catalog manages version records in a store.
type Catalog struct {
	st         *store.Store
	now        func() time.Time
	deployedBy string
	logger     *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock sets the clock used for deploy timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithDeployer sets the deployer recorded when a request names none.
func WithDeployer(name string) Option {
	return func(c *Catalog) { c.deployedBy = name }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New returns a Catalog backed by st.
func New(st *store.Store, opts ...Option) *Catalog {
	c := &Catalog{st: st, now: time.Now, deployedBy: "ci"}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// DeployRequest describes a deployment.
type DeployRequest struct {
	Service     string
	Version     string
	Environment string
	CommitSHA   string
	Changelog   string
	DeployedBy  string
}

// Deploy records req as the active version, superseding the current one.
// Deploying a version that was deployed before adds a new record.
func (c *Catalog) Deploy(req DeployRequest) (*store.VersionRecord, error) {
	if req.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if req.Version == "" {
		return nil, fmt.Errorf("version is required")
	}
	env := environment(req.Environment)
	by := req.DeployedBy
	if by == "" {
		by = c.deployedBy
	}

	rec := &store.VersionRecord{
		Service:     req.Service,
		Version:     req.Version,
		Environment: env,
		CommitSHA:   req.CommitSHA,
		Changelog:   req.Changelog,
		DeployedBy:  by,
		Status:      store.StatusActive,
		DeployedAt:  c.now().UTC(),
	}

	err := c.st.WithTx(func(q *store.Queries) error {
		current, err := q.GetActiveVersion(req.Service, env)
		switch {
		case err == nil:
			if err := q.SetVersionStatus(current.ID, store.StatusSuperseded, current.RollbackOf); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return q.InsertVersion(rec)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s %s to %s: %w", req.Service, req.Version, env, err)
	}

	c.logger.Debug("version deployed", "service", rec.Service, "version", rec.Version, "environment", env)
	return rec, nil
}

// RollbackResult reports both records touched by a rollback.
type RollbackResult struct {
	Restored   *store.VersionRecord
	RolledBack *store.VersionRecord
}

// Rollback reactivates the most recently superseded version and marks the
// current one rolled-back. Only one step back is allowed: a version that
// became active through a rollback cannot itself be rolled back until a new
// deploy happens.
func (c *Catalog) Rollback(service, env string) (*RollbackResult, error) {
	env = environment(env)
	var result RollbackResult

	err := c.st.WithTx(func(q *store.Queries) error {
		current, err := q.GetActiveVersion(service, env)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveVersion
		}
		if err != nil {
			return err
		}
		if current.RollbackOf != "" {
			return ErrNoPreviousVersion
		}

		previous, err := q.GetLatestSuperseded(service, env)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoPreviousVersion
		}
		if err != nil {
			return err
		}

		// The current row leaves the active index before the previous one
		// enters it.
		if err := q.SetVersionStatus(current.ID, store.StatusRolledBack, current.RollbackOf); err != nil {
			return err
		}
		if err := q.SetVersionStatus(previous.ID, store.StatusActive, current.Version); err != nil {
			return err
		}

		current.Status = store.StatusRolledBack
		previous.Status = store.StatusActive
		previous.RollbackOf = current.Version
		result = RollbackResult{Restored: previous, RolledBack: current}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to roll back %s in %s: %w", service, env, err)
	}

	c.logger.Debug("version rolled back", "service", service, "environment", env,
		"restored", result.Restored.Version, "rolled_back", result.RolledBack.Version)
	return &result, nil
}

// Latest returns the active version, or nil when nothing is deployed.
func (c *Catalog) Latest(service, env string) (*store.VersionRecord, error) {
	rec, err := c.st.GetActiveVersion(service, environment(env))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns every record for service in env, newest first. An empty
// service lists all services.
func (c *Catalog) History(service, env string) ([]*store.VersionRecord, error) {
	return c.st.ListVersions(service, env)
}

// Active returns every active record ordered by service and environment.
func (c *Catalog) Active() ([]*store.VersionRecord, error) {
	return c.st.ListActiveVersions()
}

func environment(env string) string {
	if env == "" {
		return DefaultEnvironment
	}
	return env
}
