// Package store is the Repository Sink: the durable write path that
// persists unique repositories discovered by the crawl over a pgxpool.Pool,
// using hand-written SQL rather than a generated Querier.
package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
)

// Outcome describes what happened to a single Upsert call. It is an alias
// for model.SinkOutcome rather than a distinct type, so *Store satisfies
// internal/expansion's Sink interface without either package importing the
// other.
type Outcome = model.SinkOutcome

const (
	// Inserted means the repository was new and a row was written.
	Inserted = model.SinkInserted
	// Collision means a row already existed for that identity; per the
	// first-write-wins policy, the existing row was left untouched.
	Collision = model.SinkCollision
)

// querier is the narrow slice of *pgxpool.Pool that Store actually calls,
// accepted as an interface so unit tests can substitute a hand-rolled fake
// instead of pulling in a mock-generation library or a real database.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps a pgxpool.Pool with the crawl engine's persistence operations.
type Store struct {
	pool   querier
	logger *slog.Logger
}

// New builds a Store over an already-connected pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Upsert writes repo if its identity has not been seen before. It relies on
// a unique constraint over (repository_name, organization_name) and
// ON CONFLICT DO NOTHING rather than DO UPDATE: first write wins, later
// observations of the same repository are discarded rather than refreshing
// star counts, since a single crawl run reports stars the moment it observes
// a repository and never revisits it.
func (s *Store) Upsert(ctx context.Context, repo model.Repository) (Outcome, error) {
	const query = `
		INSERT INTO github.repository (repository_name, organization_name, total_stars)
		VALUES ($1, $2, $3)
		ON CONFLICT (repository_name, organization_name) DO NOTHING
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query, repo.Identity.Name, repo.Identity.Organization, repo.TotalStars).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Collision, nil
	}
	if err != nil {
		return Collision, classifyStorageError(err)
	}
	return Inserted, nil
}

// CountUnique reports the number of distinct repositories persisted so far.
func (s *Store) CountUnique(ctx context.Context) (uint64, error) {
	const query = `SELECT count(*) FROM github.repository`

	var count uint64
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, classifyStorageError(err)
	}
	return count, nil
}

// classifyStorageError distinguishes a transient storage failure (worth
// retrying: a server-reported connection exception or insufficient
// resources) from a permanent one (a malformed query or a constraint the
// caller cannot satisfy by retrying), mirroring the Transport/Upstream split
// apperrors.ClientError draws for the API client. Only *pgconn.PgError codes
// are inspected; any other error, including a client-side network failure,
// is classified permanent.
func classifyStorageError(err error) *apperrors.StorageError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// Class 08 (connection exception) and 53 (insufficient resources)
		// are worth retrying; everything else is treated as permanent.
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			return &apperrors.StorageError{Permanent: false, Err: err}
		default:
			return &apperrors.StorageError{Permanent: true, Err: err}
		}
	}
	return &apperrors.StorageError{Permanent: true, Err: err}
}
