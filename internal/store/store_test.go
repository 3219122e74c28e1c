package store

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
)

// fakeRow and fakeQuerier stand in for *pgxpool.Pool in unit tests: a
// hand-rolled fake over the one method Store calls, rather than a
// mock-generation library or a real database (see DESIGN.md).
type fakeRow struct {
	scanInto int64
	err      error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if id, ok := dest[0].(*int64); ok {
			*id = r.scanInto
		}
	}
	return nil
}

type fakeQuerier struct {
	row fakeRow
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

func newTestStore(row fakeRow) *Store {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &Store{pool: &fakeQuerier{row: row}, logger: logger}
}

func TestStore_Upsert_Inserted(t *testing.T) {
	s := newTestStore(fakeRow{scanInto: 7})
	outcome, err := s.Upsert(context.Background(), model.NewRepository("acme", "widget", 42))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
}

func TestStore_Upsert_Collision(t *testing.T) {
	s := newTestStore(fakeRow{err: pgx.ErrNoRows})
	outcome, err := s.Upsert(context.Background(), model.NewRepository("acme", "widget", 42))
	require.NoError(t, err)
	assert.Equal(t, Collision, outcome)
}

func TestStore_Upsert_TransientStorageErrorIsClassified(t *testing.T) {
	s := newTestStore(fakeRow{err: &pgconn.PgError{Code: "08006"}})
	_, err := s.Upsert(context.Background(), model.NewRepository("acme", "widget", 42))
	require.Error(t, err)
	var storageErr *apperrors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.False(t, storageErr.Permanent)
}

func TestStore_Upsert_PermanentStorageErrorIsClassified(t *testing.T) {
	s := newTestStore(fakeRow{err: &pgconn.PgError{Code: "42601"}})
	_, err := s.Upsert(context.Background(), model.NewRepository("acme", "widget", 42))
	require.Error(t, err)
	var storageErr *apperrors.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.True(t, storageErr.Permanent)
}

func TestStore_CountUnique(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := &Store{pool: &countQuerier{row: countFakeRow{count: 5}}, logger: logger}

	count, err := s.CountUnique(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)
}

type countFakeRow struct {
	count uint64
	err   error
}

func (r countFakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if c, ok := dest[0].(*uint64); ok {
			*c = r.count
		}
	}
	return nil
}

type countQuerier struct {
	row countFakeRow
}

func (q *countQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.row
}
