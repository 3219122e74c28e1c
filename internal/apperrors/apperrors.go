// Package apperrors holds the typed/sentinel errors the crawl engine's
// components use to signal the policies in the error handling design:
// which failures are retried locally, which escalate to the supervisor, and
// which are normal termination signals rather than errors at all.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrAuthDenied is fatal: the remote API rejected the bearer credential
// (401/403, not a rate-limit response). The supervisor closes the queue and
// exits 1 on seeing this.
var ErrAuthDenied = errors.New("apperrors: authentication denied by remote API")

// ErrStoragePermanent is fatal: the sink failed in a way retries cannot fix
// (constraint violation other than the expected unique conflict, permission
// denied, schema mismatch).
var ErrStoragePermanent = errors.New("apperrors: permanent storage failure")

// ErrQueueClosed is returned by Queue.Pop/Push once the queue has been
// closed and, for Pop, drained. It is the normal termination signal for a
// worker's main loop, never logged as an error.
var ErrQueueClosed = errors.New("apperrors: queue is closed")

// ErrNotEnoughRequests is returned when a crawl is asked to start with no
// seed requests at all.
var ErrNotEnoughRequests = errors.New("apperrors: at least one seed request is required")

// Kind classifies a Remote API Client failure per the error handling design.
type Kind int

const (
	// KindTransport covers network/TLS/socket failures.
	KindTransport Kind = iota
	// KindRateLimited means the host reports budget exhausted.
	KindRateLimited
	// KindUpstream covers server 5xx responses or malformed payloads.
	KindUpstream
	// KindAuthDenied covers 401/403 responses.
	KindAuthDenied
	// KindNotFound covers a semantic empty result (404).
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "Transport"
	case KindRateLimited:
		return "RateLimited"
	case KindUpstream:
		return "Upstream"
	case KindAuthDenied:
		return "AuthDenied"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// ClientError wraps a Remote API Client failure with its Kind and, when the
// host reported a rate limit even on failure, HasRateLimit plus the
// Remaining count observed on that response. The full snapshot (Limit,
// ResetAt) is not carried here; the Client returns it on the Response.
type ClientError struct {
	Kind          Kind
	HasRateLimit  bool
	RemainingHint int
	Err           error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("githubapi: %s: %v", e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// StorageError wraps a Sink failure, distinguishing transient (retryable)
// from permanent (fatal) storage failures.
type StorageError struct {
	Permanent bool
	Err       error
}

func (e *StorageError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("store: permanent failure: %v", e.Err)
	}
	return fmt.Sprintf("store: transient failure: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
