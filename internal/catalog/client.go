// Package catalog is the client for the upstream game database API. All
// traffic passes through the admission gate, transient failures are retried
// with exponential backoff, and responses are decoded into domain types.
package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/errors"
	"github.com/questlogapp/questlog-server/internal/ratelimit"
)

const defaultTimeout = 30 * time.Second

// Client is a rate-limited client for the upstream catalog API.
type Client struct {
	http     *http.Client
	baseURL  string
	clientID string
	tokens   *tokenSource
	gate     *ratelimit.Gate
	logger   *slog.Logger

	maxRetries uint64
	retryBase  time.Duration
	pageSize   int
}

// New creates a new catalog client from configuration.
func New(cfg config.CatalogConfig, gate *ratelimit.Gate, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:   cfg.ClientID,
		tokens:     newTokenSource(httpClient, cfg.TokenURL, cfg.ClientID, cfg.ClientSecret),
		gate:       gate,
		logger:     logger,
		maxRetries: uint64(cfg.MaxRetries),
		retryBase:  cfg.RetryBaseDelay,
		pageSize:   cfg.CrawlPageSize,
	}
}

// PageSize returns the configured bulk crawl page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// post executes one query against an endpoint, retrying transient failures.
// The query uses the upstream's text query language and is sent as the
// request body.
func (c *Client) post(ctx context.Context, class ratelimit.Class, endpoint, query string) ([]byte, error) {
	var body []byte

	operation := func() error {
		var err error
		body, err = c.postOnce(ctx, class, endpoint, query)
		if err == nil {
			return nil
		}

		var domainErr *errors.Error
		if errors.As(err, &domainErr) && domainErr.Retryable() {
			c.logger.Warn("catalog request failed, retrying",
				"endpoint", endpoint,
				"code", domainErr.Code,
				"error", err,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	if c.retryBase > 0 {
		policy.InitialInterval = c.retryBase
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// postOnce executes a single admission-gated request.
func (c *Client) postOnce(ctx context.Context, class ratelimit.Class, endpoint, query string) ([]byte, error) {
	if err := c.gate.Acquire(ctx, class); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(query))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create catalog request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug("catalog request", "endpoint", endpoint, "class", class)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.CodeTimeout, "catalog request canceled")
		}
		return nil, errors.Wrap(err, errors.CodeUpstreamTransient, "catalog request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstreamTransient, "read catalog response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Token may have been revoked upstream; drop it so the next attempt
		// fetches a fresh one.
		c.tokens.Invalidate()
		return nil, errors.UpstreamTransient("catalog rejected access token")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.RateLimited("catalog quota exhausted")
	case resp.StatusCode >= 500:
		return nil, errors.UpstreamTransient("catalog server error " + resp.Status)
	default:
		return nil, errors.UpstreamPermanent("catalog request rejected with " + resp.Status)
	}
}
