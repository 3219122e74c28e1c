// Package crawler implements the Supervisor: it owns every piece of shared
// state (queue, seen-set, governor, progress), seeds the queue, staggers
// worker goroutines via errgroup, logs periodic progress, and drives
// graceful shutdown.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/governor"
	"repo-crawler/internal/model"
	"repo-crawler/internal/queue"
	"repo-crawler/internal/seenset"
	"repo-crawler/internal/worker"
)

// Client is the narrow slice of internal/githubapi.Client a Supervisor
// needs in order to hand it to each Worker.
type Client interface {
	Call(ctx context.Context, req model.Request) (model.Response, error)
}

// Sink is the narrow slice of internal/store.Store a Supervisor needs.
type Sink interface {
	Upsert(ctx context.Context, repo model.Repository) (model.SinkOutcome, error)
	CountUnique(ctx context.Context) (uint64, error)
}

// Config carries the Supervisor's run parameters, sourced from
// internal/config.Config by the caller.
type Config struct {
	SeedQueries    []string
	NumberWorkers  int
	PageSize       int
	TargetUnique   uint64
	RateLimit      int
	ProgressPeriod time.Duration
	StaggerDelay   time.Duration
}

// Supervisor is the top-level crawl orchestrator.
type Supervisor struct {
	cfg      Config
	client   Client
	sink     Sink
	logger   *slog.Logger
	queue    *queue.Queue
	seen     *seenset.SeenSet
	governor *governor.Governor
	progress *model.Progress
}

// New builds a Supervisor with fresh shared state.
func New(cfg Config, client Client, sink Sink, logger *slog.Logger) *Supervisor {
	if cfg.ProgressPeriod <= 0 {
		cfg.ProgressPeriod = time.Second
	}
	if cfg.StaggerDelay <= 0 {
		cfg.StaggerDelay = time.Second
	}

	capacity := cfg.NumberWorkers * queue.DefaultCapacityPerWorker
	return &Supervisor{
		cfg:      cfg,
		client:   client,
		sink:     sink,
		logger:   logger,
		queue:    queue.New(capacity),
		seen:     seenset.New(int(cfg.TargetUnique)),
		governor: governor.New(cfg.RateLimit),
		progress: &model.Progress{},
	}
}

// Progress exposes the live progress counters, e.g. for internal/progressapi.
func (s *Supervisor) Progress() *model.Progress {
	return s.progress
}

// Run seeds the queue, spawns workers, watches for termination, and returns
// once the crawl has concluded: the target is reached, every worker has
// exited (e.g. a fatal error escalated), or ctx is canceled. Workers never
// close the queue themselves, so a queue that drains while every worker
// waits in Pop does not end the run on its own.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.cfg.SeedQueries) == 0 {
		return apperrors.ErrNotEnoughRequests
	}
	s.progress.Target.Store(s.cfg.TargetUnique)

	for _, q := range s.cfg.SeedQueries {
		req := model.SearchOrganizationRequest{Query: q, PageSize: s.cfg.PageSize}
		if err := s.queue.Push(ctx, req); err != nil {
			return fmt.Errorf("crawler: seeding query %q: %w", q, err)
		}
		s.progress.RequestsBuffered.Add(1)
	}

	group, gctx := errgroup.WithContext(ctx)
	targetReached := make(chan struct{})
	var targetReachedOnce sync.Once

	for i := 0; i < s.cfg.NumberWorkers; i++ {
		i := i
		w := &worker.Worker{
			ID:                i,
			Client:            s.client,
			Governor:          s.governor,
			Queue:             s.queue,
			Sink:              s.sink,
			Counter:           s.sink,
			Seen:              s.seen,
			Progress:          s.progress,
			PageSize:          s.cfg.PageSize,
			Target:            s.cfg.TargetUnique,
			Logger:            s.logger,
			TargetReached:     targetReached,
			TargetReachedOnce: &targetReachedOnce,
		}
		group.Go(func() error { return w.Run(gctx) })

		if i < s.cfg.NumberWorkers-1 {
			select {
			case <-time.After(s.cfg.StaggerDelay):
			case <-gctx.Done():
			}
		}
	}

	progressDone := make(chan struct{})
	go s.logProgress(gctx, progressDone)

	waitErr := make(chan error, 1)
	go func() { waitErr <- group.Wait() }()

	var runErr error
	gotWait := false
	select {
	case <-targetReached:
		s.logger.Info("crawl target reached", "target", s.cfg.TargetUnique)
	case err := <-waitErr:
		runErr = err
		gotWait = true
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	s.queue.Close()
	if !gotWait {
		if err := <-waitErr; err != nil && runErr == nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}
	close(progressDone)

	return runErr
}

func (s *Supervisor) logProgress(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.ProgressPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := s.progress.Snapshot()
			rate := s.governor.Snapshot()
			s.logger.Info("crawl progress",
				"done", snap.Done,
				"target", snap.Target,
				"collisions", snap.Collisions,
				"requests_done", snap.RequestsDone,
				"requests_in_flight", snap.RequestsInFlight,
				"requests_buffered", snap.RequestsBuffered,
				"rate_limit", rate.String(),
			)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
