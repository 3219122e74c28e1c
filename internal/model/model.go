// Package model holds the plain value types shared across the crawl engine:
// repository identity/records, the two crawl request variants, responses,
// rate-limit snapshots and the progress counters.
package model

import (
	"fmt"
	"sync/atomic"
	"time"
)

// RepositoryIdentity is the globally unique key for a repository: the pair
// (organization_name, repository_name). Both fields are non-empty and
// comparisons are case-sensitive. It is comparable, so it can be used
// directly as a map key by the seen-set.
type RepositoryIdentity struct {
	Organization string
	Name         string
}

func (id RepositoryIdentity) String() string {
	return fmt.Sprintf("%s/%s", id.Organization, id.Name)
}

// Valid reports whether both identity components are non-empty.
func (id RepositoryIdentity) Valid() bool {
	return id.Organization != "" && id.Name != ""
}

// Repository is a fully-formed record: identity plus star count. It is
// immutable after construction; nothing in this codebase mutates a
// Repository's fields once built.
type Repository struct {
	Identity   RepositoryIdentity
	TotalStars int
}

// NewRepository builds a Repository, panicking on an invalid identity since
// callers always derive identities from already-validated request/response
// data; this is a programmer-error guard, not a runtime validation path.
func NewRepository(organization, name string, totalStars int) Repository {
	id := RepositoryIdentity{Organization: organization, Name: name}
	if !id.Valid() {
		panic(fmt.Sprintf("model: invalid repository identity %q/%q", organization, name))
	}
	return Repository{Identity: id, TotalStars: totalStars}
}

func (r Repository) String() string {
	return fmt.Sprintf("Repository: %s, Organization: %s, Stars: %d", r.Identity.Name, r.Identity.Organization, r.TotalStars)
}

// Request is the sealed set of crawl request variants. New kinds are added
// by introducing a new concrete type implementing this interface and adding
// an arm to the type switches in the client's Call and the worker's expand —
// never by opening up dispatch.
type Request interface {
	isRequest()
	// Cursor returns the pagination cursor carried by this request, or nil
	// for an untouched request.
	Cursor() *string
	String() string
}

// SearchOrganizationRequest enumerates orgs/users matching a free-text host
// query.
type SearchOrganizationRequest struct {
	Query    string
	PageSize int
	After    *string
}

func (SearchOrganizationRequest) isRequest() {}

func (r SearchOrganizationRequest) Cursor() *string { return r.After }

func (r SearchOrganizationRequest) String() string {
	return fmt.Sprintf("SearchOrganizationRequest: query=%s, page_size=%d, after=%v", r.Query, r.PageSize, derefOrNil(r.After))
}

// Equal reports structural equality, dereferencing the cursor pointer.
func (r SearchOrganizationRequest) Equal(other SearchOrganizationRequest) bool {
	return r.Query == other.Query && r.PageSize == other.PageSize && equalCursor(r.After, other.After)
}

// ListRepositoriesRequest enumerates a given owner's public repositories.
type ListRepositoriesRequest struct {
	Owner    string
	PageSize int
	After    *string
}

func (ListRepositoriesRequest) isRequest() {}

func (r ListRepositoriesRequest) Cursor() *string { return r.After }

func (r ListRepositoriesRequest) String() string {
	return fmt.Sprintf("ListRepositoriesRequest: owner=%s, page_size=%d, after=%v", r.Owner, r.PageSize, derefOrNil(r.After))
}

// Equal reports structural equality, dereferencing the cursor pointer.
func (r ListRepositoriesRequest) Equal(other ListRepositoriesRequest) bool {
	return r.Owner == other.Owner && r.PageSize == other.PageSize && equalCursor(r.After, other.After)
}

func equalCursor(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// RateLimitSnapshot is (remaining, limit, reset_at). Initialized to
// (limit, now) and updated monotonically by whichever response most
// recently reports a later observation (see governor.Governor.Observe).
type RateLimitSnapshot struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

func (s RateLimitSnapshot) String() string {
	return fmt.Sprintf("RateLimit: calls=%d/%d, reset=%s", s.Limit-s.Remaining, s.Limit, s.ResetAt.Format(time.RFC3339))
}

// Exceeded reports whether no budget remains.
func (s RateLimitSnapshot) Exceeded() bool {
	return s.Remaining <= 0
}

// SinkOutcome is the result of a Repository Sink upsert. It lives here,
// rather than in internal/store, so internal/expansion's Sink interface and
// internal/store's concrete Store agree on the same return type without
// either package importing the other.
type SinkOutcome int

const (
	// SinkInserted means the repository was new and a row was written.
	SinkInserted SinkOutcome = iota
	// SinkCollision means a row already existed for that identity; the
	// existing row was left untouched (first write wins).
	SinkCollision
)

func (o SinkOutcome) String() string {
	switch o {
	case SinkInserted:
		return "inserted"
	case SinkCollision:
		return "collision"
	default:
		return "unknown"
	}
}

// SearchItem is one item on a SearchOrganization response page: an owner
// (organization or user) login matching the search query.
type SearchItem struct {
	OwnerLogin string
}

// Response is a crawl response. Exactly one of Items (for a
// SearchOrganization request) or Repositories (for a ListRepositories
// request) is populated, matching the request kind that produced it; it is
// one struct with two optional slices rather than a second sealed interface
// mirroring Request. internal/expansion does not inspect which slice is
// populated: its caller passes the originating request kind explicitly.
type Response struct {
	Items        []SearchItem
	Repositories []Repository
	NextCursor   *string
	RateLimit    RateLimitSnapshot
}

// Progress holds the monotonic (except in-flight/buffered) counters shared
// across all workers and the supervisor. Every field is an atomic so any
// goroutine may update it without a separate lock.
type Progress struct {
	Done             atomic.Uint64
	Target           atomic.Uint64
	Collisions       atomic.Uint64
	RequestsDone     atomic.Int64
	RequestsInFlight atomic.Int64
	RequestsBuffered atomic.Int64
}

// ProgressSnapshot is a point-in-time, plain-value read of Progress, fit for
// logging or JSON encoding.
type ProgressSnapshot struct {
	Done             uint64 `json:"done"`
	Target           uint64 `json:"target"`
	Collisions       uint64 `json:"collisions"`
	RequestsDone     int64  `json:"requests_done"`
	RequestsInFlight int64  `json:"requests_in_flight"`
	RequestsBuffered int64  `json:"requests_buffered"`
}

// Snapshot reads every counter and returns a plain-value copy.
func (p *Progress) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Done:             p.Done.Load(),
		Target:           p.Target.Load(),
		Collisions:       p.Collisions.Load(),
		RequestsDone:     p.RequestsDone.Load(),
		RequestsInFlight: p.RequestsInFlight.Load(),
		RequestsBuffered: p.RequestsBuffered.Load(),
	}
}
