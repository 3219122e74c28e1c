package crawler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedClient answers SearchOrganization with one owner, and
// ListRepositories for that owner with a fixed, small set of records —
// enough to drive S1 end-to-end through the real Supervisor/Worker wiring.
type scriptedClient struct {
	mu             sync.Mutex
	searchCalls    int
	listCalls      int
	owner          string
	repositories   []model.Repository
	failAuthOnCall bool
}

func (c *scriptedClient) Call(ctx context.Context, req model.Request) (model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAuthOnCall {
		return model.Response{}, &apperrors.ClientError{Kind: apperrors.KindAuthDenied}
	}

	switch r := req.(type) {
	case model.SearchOrganizationRequest:
		c.searchCalls++
		if c.searchCalls > 1 {
			return model.Response{}, nil
		}
		return model.Response{Items: []model.SearchItem{{OwnerLogin: c.owner}}}, nil
	case model.ListRepositoriesRequest:
		c.listCalls++
		if r.Owner != c.owner || c.listCalls > 1 {
			return model.Response{}, nil
		}
		return model.Response{Repositories: c.repositories}, nil
	default:
		return model.Response{}, nil
	}
}

type memorySink struct {
	mu   sync.Mutex
	rows map[model.RepositoryIdentity]model.Repository
}

func newMemorySink() *memorySink {
	return &memorySink{rows: make(map[model.RepositoryIdentity]model.Repository)}
}

func (s *memorySink) Upsert(ctx context.Context, repo model.Repository) (model.SinkOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[repo.Identity]; exists {
		return model.SinkCollision, nil
	}
	s.rows[repo.Identity] = repo
	return model.SinkInserted, nil
}

func (s *memorySink) CountUnique(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.rows)), nil
}

// S1 — single seed, single worker, two repos.
func TestSupervisor_S1_SingleSeedSingleWorkerTwoRepos(t *testing.T) {
	client := &scriptedClient{
		owner: "acme",
		repositories: []model.Repository{
			model.NewRepository("acme", "foo", 10),
			model.NewRepository("acme", "bar", 5),
		},
	}
	sink := newMemorySink()

	sup := New(Config{
		SeedQueries:    []string{"is:public"},
		NumberWorkers:  1,
		PageSize:       100,
		TargetUnique:   2,
		RateLimit:      30,
		ProgressPeriod: 50 * time.Millisecond,
		StaggerDelay:   10 * time.Millisecond,
	}, client, sink, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sup.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, sink.rows, 2)
}

// S6 — auth denied: the Supervisor's Run returns the escalated error.
func TestSupervisor_S6_AuthDeniedEscalates(t *testing.T) {
	client := &scriptedClient{failAuthOnCall: true}
	sink := newMemorySink()

	sup := New(Config{
		SeedQueries:    []string{"is:public"},
		NumberWorkers:  1,
		PageSize:       100,
		TargetUnique:   1000,
		RateLimit:      30,
		ProgressPeriod: 50 * time.Millisecond,
		StaggerDelay:   10 * time.Millisecond,
	}, client, sink, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := sup.Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrAuthDenied)
}

func TestSupervisor_Run_RequiresAtLeastOneSeedQuery(t *testing.T) {
	sup := New(Config{
		SeedQueries:   nil,
		NumberWorkers: 1,
		PageSize:      100,
		TargetUnique:  1,
		RateLimit:     30,
	}, &scriptedClient{}, newMemorySink(), testLogger())

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotEnoughRequests)
}
