// Package github implements the upstream source client: paginated listing of
// followed accounts and conditional fetching of their starred repositories,
// with shared rate-limit handling and bounded retries.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/BarkinBalci/star-feed-service/internal/domain"
)

const (
	perPage          = 100
	transientRetries = 3

	// Media type that makes the starred endpoint include star timestamps.
	starAcceptHeader = "application/vnd.github.star+json, application/vnd.github.mercy-preview+json"
)

// Config carries the settings the client needs from the process config.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	gate       *RateGate
	log        *zap.Logger
}

// NewClient creates a GitHub API client.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base.String(),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		gate:       NewRateGate(),
		log:        log,
	}, nil
}

// StarredRequest describes one conditional fetch of an account's stars.
type StarredRequest struct {
	Handle       string
	ETag         string
	LastModified string
	// KnownLatest is the newest occurred_at already stored for the account.
	// Paging stops as soon as an item at or before it appears.
	KnownLatest *time.Time
}

// Outcome is the result of a starred fetch.
type Outcome struct {
	NotModified  bool
	Events       []domain.StarEvent
	ETag         string
	LastModified string
	FetchedAt    time.Time
}

type apiUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type apiStarred struct {
	StarredAt time.Time `json:"starred_at"`
	Repo      struct {
		FullName    string   `json:"full_name"`
		Description string   `json:"description"`
		HTMLURL     string   `json:"html_url"`
		Language    string   `json:"language"`
		Topics      []string `json:"topics"`
	} `json:"repo"`
}

// ListFollowing returns every account the authenticated principal follows,
// walking pagination until a short page.
func (c *Client) ListFollowing(ctx context.Context) ([]domain.AccountRef, error) {
	var refs []domain.AccountRef
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/user/following?per_page=%d&page=%d", c.baseURL, perPage, page)
		resp, err := c.get(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var body []apiUser
		err = c.decodeOK(resp, &body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse followed accounts: %w", err)
		}

		for _, u := range body {
			refs = append(refs, domain.AccountRef{ID: u.ID, Handle: u.Login})
		}
		if len(body) < perPage {
			return refs, nil
		}
	}
}

// FetchStarred issues a conditional request for an account's starred
// repositories and pages forward only as far as events newer than
// req.KnownLatest.
func (c *Client) FetchStarred(ctx context.Context, req StarredRequest) (*Outcome, error) {
	outcome := &Outcome{}
	paging := true

	for page := 1; paging; page++ {
		endpoint := fmt.Sprintf("%s/users/%s/starred?per_page=%d&page=%d",
			c.baseURL, url.PathEscape(req.Handle), perPage, page)

		headers := http.Header{}
		headers.Set("Accept", starAcceptHeader)
		if page == 1 {
			if req.ETag != "" {
				headers.Set("If-None-Match", req.ETag)
			}
			if req.LastModified != "" {
				headers.Set("If-Modified-Since", req.LastModified)
			}
		}

		resp, err := c.get(ctx, endpoint, headers)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotModified {
			drain(resp)
			outcome.NotModified = true
			outcome.FetchedAt = time.Now().UTC()
			return outcome, nil
		}

		if page == 1 {
			outcome.ETag = resp.Header.Get("ETag")
			outcome.LastModified = resp.Header.Get("Last-Modified")
		}

		var body []apiStarred
		err = c.decodeOK(resp, &body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse starred repos for %s: %w", req.Handle, err)
		}
		if len(body) == 0 {
			break
		}

		added := 0
		for _, item := range body {
			if req.KnownLatest != nil && !item.StarredAt.After(*req.KnownLatest) {
				paging = false
				break
			}
			outcome.Events = append(outcome.Events, domain.StarEvent{
				AccountHandle:   req.Handle,
				RepoFullName:    item.Repo.FullName,
				RepoHTMLURL:     item.Repo.HTMLURL,
				RepoDescription: item.Repo.Description,
				RepoLanguage:    item.Repo.Language,
				RepoTopics:      item.Repo.Topics,
				OccurredAt:      item.StarredAt.UTC(),
			})
			added++
		}
		if added < perPage {
			break
		}
	}

	outcome.FetchedAt = time.Now().UTC()
	for i := range outcome.Events {
		outcome.Events[i].ObservedAt = outcome.FetchedAt
	}
	return outcome, nil
}

// RateLimit exposes the latest observed quota state for the status surface.
func (c *Client) RateLimit() RateLimitSnapshot {
	return c.gate.Snapshot()
}

// get performs one GET against the API, waiting out any rate-limit pause
// first and retrying transient failures with exponential backoff. Responses
// with status 200 or 304 are returned to the caller; everything else is
// classified into the error taxonomy here.
func (c *Client) get(ctx context.Context, endpoint string, headers http.Header) (*http.Response, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *http.Response
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", c.userAgent)
		for key, values := range headers {
			for _, v := range values {
				req.Header.Set(key, v)
			}
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/vnd.github+json")
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.log.Warn("Upstream request failed, will retry",
				zap.String("url", endpoint),
				zap.Error(err))
			return err
		}
		if r.StatusCode >= 500 {
			drain(r)
			c.log.Warn("Upstream server error, will retry",
				zap.String("url", endpoint),
				zap.String("status", r.Status))
			return fmt.Errorf("upstream status %s", r.Status)
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newTransientBackOff(), transientRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientError{Err: err}
	}

	c.gate.Observe(resp.Header)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotModified:
		return resp, nil
	case http.StatusUnauthorized:
		drain(resp)
		return nil, domain.ErrAuth
	case http.StatusForbidden, http.StatusTooManyRequests:
		drain(resp)
		if wait, ok := retryAfter(resp.Header); ok {
			c.gate.Pause(time.Now().Add(wait))
			return nil, &domain.RateLimitedError{RetryAfter: wait}
		}
		return nil, domain.ErrForbidden
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected upstream status %s: %s", resp.Status, snippet)
	}
}

func (c *Client) decodeOK(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func newTransientBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	return b
}

func retryAfter(h http.Header) (time.Duration, bool) {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
