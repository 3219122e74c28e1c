// Package expansion is the pure translation step between a Response and its
// records (persisted via the Sink, deduplicated via the SeenSet) and
// follow-up requests (pushed to the Queue). It holds no state of its own;
// Expand is a free function over its inputs so replaying the same response
// is reproducible.
package expansion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
	"repo-crawler/internal/seenset"
)

// sinkRetries bounds the in-place retry count for a Storage-Transient Sink
// failure before it's escalated as permanent for this crawl run.
const sinkRetries = 3

// Sink is the narrow slice of internal/store.Store that Expand needs,
// accepted as an interface so tests can substitute an in-memory fake.
type Sink interface {
	Upsert(ctx context.Context, repo model.Repository) (model.SinkOutcome, error)
}

// SeenSet is the narrow slice of internal/seenset.SeenSet that Expand needs.
type SeenSet interface {
	Observe(identity model.RepositoryIdentity) seenset.Outcome
}

// Queue is the narrow slice of internal/queue.Queue that Expand needs.
type Queue interface {
	Push(ctx context.Context, req model.Request) error
}

// Expand translates resp into Sink/SeenSet side effects and follow-up Queue
// pushes, updating progress as it goes. originating carries whatever
// identifies the request that produced resp for the purpose of building its
// pagination continuation: the search query for a SearchOrganization
// response, or the owner login for a ListRepositoriesOfOrganization
// response. Which branch runs is decided by which request kind originated
// resp, not by inspecting resp's contents, since an empty page (e.g. from a
// NotFound owner folded into an empty response) must still take the right
// branch; callers pass isSearch accordingly.
//
// Records are always recorded before follow-up requests for the same
// response are enqueued — the loop order below does every seen.Observe/
// sink.Upsert call before the single trailing queue push.
func Expand(
	ctx context.Context,
	resp model.Response,
	isSearch bool,
	originating string,
	pageSize int,
	sink Sink,
	seen SeenSet,
	q Queue,
	progress *model.Progress,
) error {
	if isSearch {
		return expandSearch(ctx, resp, originating, pageSize, q, progress)
	}
	return expandRepositories(ctx, resp, originating, pageSize, sink, seen, q, progress)
}

func expandSearch(
	ctx context.Context,
	resp model.Response,
	originatingQuery string,
	pageSize int,
	q Queue,
	progress *model.Progress,
) error {
	for _, item := range resp.Items {
		req := model.ListRepositoriesRequest{Owner: item.OwnerLogin, PageSize: pageSize}
		if err := q.Push(ctx, req); err != nil {
			return fmt.Errorf("expansion: pushing list-repositories request for %s: %w", item.OwnerLogin, err)
		}
		progress.RequestsBuffered.Add(1)
	}

	if resp.NextCursor != nil {
		req := model.SearchOrganizationRequest{Query: originatingQuery, PageSize: pageSize, After: resp.NextCursor}
		if err := q.Push(ctx, req); err != nil {
			return fmt.Errorf("expansion: pushing search continuation: %w", err)
		}
		progress.RequestsBuffered.Add(1)
	}

	return nil
}

func expandRepositories(
	ctx context.Context,
	resp model.Response,
	owner string,
	pageSize int,
	sink Sink,
	seen SeenSet,
	q Queue,
	progress *model.Progress,
) error {
	for _, repo := range resp.Repositories {
		outcome := seen.Observe(repo.Identity)
		if outcome == seenset.Duplicate {
			progress.Collisions.Add(1)
			continue
		}

		sinkOutcome, err := upsertWithRetry(ctx, sink, repo)
		if err != nil {
			return fmt.Errorf("expansion: upserting %s: %w", repo.Identity, err)
		}

		switch sinkOutcome {
		case model.SinkInserted:
			progress.Done.Add(1)
		case model.SinkCollision:
			progress.Collisions.Add(1)
		}
	}

	if resp.NextCursor != nil {
		req := model.ListRepositoriesRequest{Owner: owner, PageSize: pageSize, After: resp.NextCursor}
		if err := q.Push(ctx, req); err != nil {
			return fmt.Errorf("expansion: pushing list-repositories continuation for %s: %w", owner, err)
		}
		progress.RequestsBuffered.Add(1)
	}

	return nil
}

// upsertWithRetry retries a Storage-Transient Sink failure in place, up to
// sinkRetries times, before giving up. A Storage-Permanent failure is never
// retried. Either way, exhaustion escalates as apperrors.ErrStoragePermanent:
// a Sink that still can't accept a write after sinkRetries tries is treated
// as permanent for the remainder of this crawl run. Retrying here rather than
// in the caller's Expand call keeps Seen-Set Observe calls — already made,
// above, exactly once per item — from ever running twice for the same item.
func upsertWithRetry(ctx context.Context, sink Sink, repo model.Repository) (model.SinkOutcome, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0

	var outcome model.SinkOutcome
	operation := func() error {
		var err error
		outcome, err = sink.Upsert(ctx, repo)
		if err == nil {
			return nil
		}
		var storageErr *apperrors.StorageError
		if errors.As(err, &storageErr) && storageErr.Permanent {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithMaxRetries(policy, sinkRetries)); err != nil {
		return outcome, fmt.Errorf("%w: %v", apperrors.ErrStoragePermanent, err)
	}
	return outcome, nil
}
