package githubapi

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/google/go-github/v62/github"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
)

// classify turns a go-github/stdlib error into a *apperrors.ClientError,
// recording the remaining-budget hint from a *github.RateLimitError when the
// host provided one even on failure, per the client's "surface rate-limit
// headers even on failure" requirement.
func classify(err error) *apperrors.ClientError {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &apperrors.ClientError{
			Kind:          apperrors.KindRateLimited,
			HasRateLimit:  true,
			RemainingHint: rateLimitErr.Rate.Remaining,
			Err:           err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &apperrors.ClientError{Kind: apperrors.KindRateLimited, Err: err}
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch status := errResp.Response.StatusCode; {
		case status == 401 || status == 403:
			return &apperrors.ClientError{Kind: apperrors.KindAuthDenied, Err: err}
		case status == 404:
			return &apperrors.ClientError{Kind: apperrors.KindNotFound, Err: err}
		case status >= 500:
			return &apperrors.ClientError{Kind: apperrors.KindUpstream, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &apperrors.ClientError{Kind: apperrors.KindTransport, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &apperrors.ClientError{Kind: apperrors.KindTransport, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &apperrors.ClientError{Kind: apperrors.KindTransport, Err: err}
	}

	// Anything else is assumed to be a malformed/undecodable payload rather
	// than a transport-level failure.
	return &apperrors.ClientError{Kind: apperrors.KindUpstream, Err: err}
}

func rateLimitFromResponse(resp *github.Response) model.RateLimitSnapshot {
	if resp == nil {
		return model.RateLimitSnapshot{}
	}
	return model.RateLimitSnapshot{
		Remaining: resp.Rate.Remaining,
		Limit:     resp.Rate.Limit,
		ResetAt:   resp.Rate.Reset.Time,
	}
}
