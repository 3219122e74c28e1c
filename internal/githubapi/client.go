// Package githubapi is the Remote API Client: a thin typed façade over
// GitHub's REST API translating the two crawl request variants into
// go-github calls and back into the domain's Request/Response model. It
// does not retry, does not loop over pages itself, and does not
// deduplicate — it only translates one call.
package githubapi

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"repo-crawler/internal/apperrors"
	"repo-crawler/internal/model"
)

// Client wraps a go-github client authenticated with a bearer token via
// oauth2.StaticTokenSource.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient builds a Client authenticated with the given bearer token.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	return &Client{gh: github.NewClient(tc), logger: logger}
}

// Call dispatches req to the matching operation based on its dynamic type —
// the tagged-variant-with-explicit-arms dispatch the design calls for, kept
// in this one place.
func (c *Client) Call(ctx context.Context, req model.Request) (model.Response, error) {
	switch r := req.(type) {
	case model.SearchOrganizationRequest:
		return c.SearchOrganizations(ctx, r)
	case model.ListRepositoriesRequest:
		return c.ListRepositoriesOfOrganization(ctx, r)
	default:
		return model.Response{}, fmt.Errorf("githubapi: unknown request type %T", req)
	}
}

// cursorToPage turns the domain's opaque cursor into a REST page number:
// GitHub's search/list-by-org endpoints are page-numbered, not cursor-based,
// so a nil cursor means page 1 and a non-nil cursor is the stringified next
// page number echoed straight back, unparsed by anything except this
// boundary.
func cursorToPage(cursor *string) (int, error) {
	if cursor == nil {
		return 0, nil
	}
	page, err := strconv.Atoi(*cursor)
	if err != nil {
		return 0, fmt.Errorf("githubapi: invalid cursor %q: %w", *cursor, err)
	}
	return page, nil
}

func pageToCursor(nextPage int) *string {
	if nextPage == 0 {
		return nil
	}
	s := strconv.Itoa(nextPage)
	return &s
}

// SearchOrganizations enumerates orgs/users matching a free-text query via
// GitHub's user/org search endpoint.
func (c *Client) SearchOrganizations(ctx context.Context, req model.SearchOrganizationRequest) (model.Response, error) {
	page, err := cursorToPage(req.After)
	if err != nil {
		return model.Response{}, &apperrors.ClientError{Kind: apperrors.KindUpstream, Err: err}
	}

	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: req.PageSize},
	}
	result, resp, err := c.gh.Search.Users(ctx, "type:org "+req.Query, opts)
	rateLimit := rateLimitFromResponse(resp)
	if err != nil {
		clientErr := classify(err)
		if clientErr.HasRateLimit {
			clientErr.RemainingHint = rateLimit.Remaining
		}
		return model.Response{RateLimit: rateLimit}, clientErr
	}

	items := make([]model.SearchItem, 0, len(result.Users))
	for _, u := range result.Users {
		items = append(items, model.SearchItem{OwnerLogin: u.GetLogin()})
	}

	return model.Response{
		Items:      items,
		NextCursor: pageToCursor(resp.NextPage),
		RateLimit:  rateLimit,
	}, nil
}

// ListRepositoriesOfOrganization enumerates a given owner's public
// repositories via GitHub's list-organization-repositories endpoint.
func (c *Client) ListRepositoriesOfOrganization(ctx context.Context, req model.ListRepositoriesRequest) (model.Response, error) {
	page, err := cursorToPage(req.After)
	if err != nil {
		return model.Response{}, &apperrors.ClientError{Kind: apperrors.KindUpstream, Err: err}
	}

	opts := &github.RepositoryListByOrgOptions{
		Type:        "public",
		ListOptions: github.ListOptions{Page: page, PerPage: req.PageSize},
	}
	repos, resp, err := c.gh.Repositories.ListByOrg(ctx, req.Owner, opts)
	rateLimit := rateLimitFromResponse(resp)
	if err != nil {
		clientErr := classify(err)
		if clientErr.HasRateLimit {
			clientErr.RemainingHint = rateLimit.Remaining
		}
		return model.Response{RateLimit: rateLimit}, clientErr
	}

	items := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		items = append(items, model.NewRepository(req.Owner, r.GetName(), r.GetStargazersCount()))
	}

	return model.Response{
		Repositories: items,
		NextCursor:   pageToCursor(resp.NextPage),
		RateLimit:    rateLimit,
	}, nil
}
