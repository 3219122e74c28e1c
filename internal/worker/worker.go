// Package worker runs one crawl goroutine: dequeue a request, reserve rate
// budget, call the remote API, expand the response, and apply the retry/
// escalation policy on failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/expansion"
	"repo-crawler/internal/model"
)

// maxRetries bounds the in-place retry count for Transport/Upstream
// failures. internal/expansion applies its own retry budget around the
// Sink call, since retrying there doesn't risk re-running Seen-Set
// observations for records already marked seen.
const maxRetries = 3

// Client is the narrow slice of internal/githubapi.Client a worker needs.
type Client interface {
	Call(ctx context.Context, req model.Request) (model.Response, error)
}

// Governor is the narrow slice of internal/governor.Governor a worker needs.
type Governor interface {
	Reserve(ctx context.Context) error
	Observe(snap model.RateLimitSnapshot)
	ReleaseWithoutCall()
}

// Queue is the narrow slice of internal/queue.Queue a worker needs.
type Queue interface {
	Pop(ctx context.Context) (model.Request, error)
	Push(ctx context.Context, req model.Request) error
}

// Counter is the narrow slice of internal/store.Store a worker needs to
// decide whether the crawl's target has been reached.
type Counter interface {
	CountUnique(ctx context.Context) (uint64, error)
}

// Worker owns no state beyond its dependencies; all mutable state (queue,
// governor, seen-set, sink, progress) is shared with and owned by the
// Supervisor.
type Worker struct {
	ID       int
	Client   Client
	Governor Governor
	Queue    Queue
	Sink     expansion.Sink
	Counter  Counter
	Seen     expansion.SeenSet
	Progress *model.Progress
	PageSize int
	Target   uint64
	Logger   *slog.Logger

	// TargetReached is closed exactly once, by whichever worker first
	// observes the sink's unique count reach Target. TargetReachedOnce is
	// shared by every worker in the same crawl so that close happens under
	// one sync.Once regardless of which worker's checkTarget wins the race;
	// without it, two workers observing count >= Target in the same instant
	// can both attempt the close and panic.
	TargetReached     chan struct{}
	TargetReachedOnce *sync.Once
}

// Run loops until the queue closes, the target is reached, an AuthDenied
// failure escalates, or ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger.With("worker_id", w.ID)

	for {
		req, err := w.Queue.Pop(ctx)
		if errors.Is(err, apperrors.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		w.Progress.RequestsBuffered.Add(-1)

		if err := w.Governor.Reserve(ctx); err != nil {
			return err
		}
		w.Progress.RequestsInFlight.Add(1)

		resp, callErr := w.Client.Call(ctx, req)
		w.Progress.RequestsInFlight.Add(-1)
		w.Progress.RequestsDone.Add(1)

		if callErr == nil {
			w.Governor.Observe(resp.RateLimit)
			if err := w.expand(ctx, req, resp); err != nil {
				return err
			}
			if done, err := w.checkTarget(ctx); err != nil {
				return err
			} else if done {
				return nil
			}
			continue
		}

		var clientErr *apperrors.ClientError
		if !errors.As(callErr, &clientErr) {
			logger.Error("unclassified client failure", "error", callErr)
			continue
		}

		switch clientErr.Kind {
		case apperrors.KindRateLimited:
			if clientErr.HasRateLimit {
				// resp carries the full snapshot (Remaining, Limit, ResetAt)
				// the Client attached even on a failed call; clientErr's
				// RemainingHint alone would lose ResetAt and make the
				// Governor refresh its budget immediately instead of
				// waiting out the real window.
				w.Governor.Observe(resp.RateLimit)
			}
			if err := w.Queue.Push(ctx, req); err != nil {
				return fmt.Errorf("worker: re-enqueuing rate-limited request: %w", err)
			}
			w.Progress.RequestsBuffered.Add(1)
			w.Governor.ReleaseWithoutCall()

		case apperrors.KindTransport, apperrors.KindUpstream:
			resp, retryErr := w.retryInPlace(ctx, req, logger)
			if retryErr != nil {
				logger.Error("dropping request after exhausting retries", "request", req.String(), "error", retryErr)
				continue
			}
			w.Governor.Observe(resp.RateLimit)
			if err := w.expand(ctx, req, resp); err != nil {
				return err
			}
			if done, err := w.checkTarget(ctx); err != nil {
				return err
			} else if done {
				return nil
			}

		case apperrors.KindAuthDenied:
			return apperrors.ErrAuthDenied

		case apperrors.KindNotFound:
			w.Governor.Observe(resp.RateLimit)
			if err := w.expand(ctx, req, model.Response{}); err != nil {
				return err
			}
		}
	}
}

// retryInPlace retries the same request up to maxRetries times using
// exponential backoff, waiting the backoff interval before every retry.
func (w *Worker) retryInPlace(ctx context.Context, req model.Request, logger *slog.Logger) (model.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0

	retries := backoff.WithMaxRetries(policy, maxRetries)
	retries.Reset()

	var resp model.Response
	var err error
	for next := retries.NextBackOff(); next != backoff.Stop; next = retries.NextBackOff() {
		time.Sleep(next)
		resp, err = w.Client.Call(ctx, req)
		if err == nil {
			return resp, nil
		}
	}

	logger.Warn("retry exhausted", "request", req.String(), "error", err)
	return resp, err
}

// expand runs internal/expansion.Expand over resp, deriving whether req was
// a search or a list-repositories request and the identifier Expand needs
// to build a pagination continuation.
func (w *Worker) expand(ctx context.Context, req model.Request, resp model.Response) error {
	switch r := req.(type) {
	case model.SearchOrganizationRequest:
		return expansion.Expand(ctx, resp, true, r.Query, w.PageSize, w.Sink, w.Seen, w.Queue, w.Progress)
	case model.ListRepositoriesRequest:
		return expansion.Expand(ctx, resp, false, r.Owner, w.PageSize, w.Sink, w.Seen, w.Queue, w.Progress)
	default:
		return fmt.Errorf("worker: unknown request type %T", req)
	}
}

// checkTarget reports whether the sink's unique count has reached Target,
// signaling TargetReached exactly once if so.
func (w *Worker) checkTarget(ctx context.Context) (bool, error) {
	count, err := w.Counter.CountUnique(ctx)
	if err != nil {
		return false, fmt.Errorf("worker: counting unique repositories: %w", err)
	}
	if count < w.Target {
		return false, nil
	}

	w.TargetReachedOnce.Do(func() { close(w.TargetReached) })
	return true, nil
}
