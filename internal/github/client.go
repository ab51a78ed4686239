// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// maxRetries is the number of attempts made for a single API call.
	maxRetries = 3
	// searchPageSize is the largest page the search API serves.
	searchPageSize = 100
	// rustQualifier restricts a search to Rust repositories.
	rustQualifier = "language:rust"
)

// Client is a wrapper around the go-github client.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	backoff time.Duration
	logger  *slog.Logger
}

// NewClient creates and configures a new Client instance.
// When token is empty the client is unauthenticated and subject to the lower anonymous rate limit.
func NewClient(token string, logger *slog.Logger) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	return &Client{
		gh: github.NewClient(httpClient),
		// The search API allows 30 requests per minute for authenticated users.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		backoff: time.Second,
		logger:  logger,
	}
}

// SearchRustRepositories runs a repository search and returns up to limit
// catalog entries of the form https://github.com/<owner>/<name>.
func (c *Client) SearchRustRepositories(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	query = withRustQualifier(query)

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: min(limit, searchPageSize)},
	}

	entries := make([]string, 0, limit)
	for len(entries) < limit {
		c.logger.Debug("Searching repositories", "query", query, "page", opts.Page)

		var result *github.RepositoriesSearchResult
		resp, err := c.withRetry(ctx, func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			result, resp, err = c.gh.Search.Repositories(ctx, query, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("search repositories %q: %w", query, err)
		}

		for _, repo := range result.Repositories {
			if len(entries) == limit {
				break
			}
			entries = append(entries, toCatalogEntry(repo))
		}

		if resp.NextPage == 0 || len(result.Repositories) == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return entries, nil
}

// withRetry paces fn through the rate limiter and retries it on server
// errors and rate limit responses, up to maxRetries attempts.
func (c *Client) withRetry(ctx context.Context, fn func() (*github.Response, error)) (*github.Response, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		var wait time.Duration
		var rateErr *github.RateLimitError
		var abuseErr *github.AbuseRateLimitError
		switch {
		case errors.As(err, &rateErr):
			wait = time.Until(rateErr.Rate.Reset.Time) + 100*time.Millisecond
			c.logger.Warn("GitHub rate limit hit, waiting for reset", "wait", wait.String())
		case errors.As(err, &abuseErr):
			wait = abuseErr.GetRetryAfter()
			c.logger.Warn("GitHub secondary rate limit hit", "wait", wait.String())
		case resp != nil && resp.StatusCode >= http.StatusInternalServerError:
			wait = backoff
			backoff *= 2
			c.logger.Warn("GitHub server error, retrying", "status", resp.StatusCode, "attempt", attempt, "wait", wait.String())
		default:
			return resp, err
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withRustQualifier(query string) string {
	query = strings.TrimSpace(query)
	if strings.Contains(strings.ToLower(query), rustQualifier) {
		return query
	}
	if query == "" {
		return rustQualifier
	}
	return query + " " + rustQualifier
}

// toCatalogEntry translates a github.Repository into a catalog line.
func toCatalogEntry(r *github.Repository) string {
	return fmt.Sprintf("https://github.com/%s/%s", r.GetOwner().GetLogin(), r.GetName())
}
