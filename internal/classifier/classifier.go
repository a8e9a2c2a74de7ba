// Package classifier is the client for the external genre model service,
// consumed by bulk crawl runs to fill in genres for catalog entries the
// upstream left unannotated.
package classifier

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/questlogapp/questlog-server/internal/config"
	"github.com/questlogapp/questlog-server/internal/domain"
	"github.com/questlogapp/questlog-server/internal/errors"
)

// Client calls the genre classifier service.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a classifier client. Returns nil when no base URL is
// configured; callers treat a nil client as classification disabled.
func New(cfg config.ClassifierConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

type predictRequest struct {
	CatalogID uint64   `json:"catalog_id"`
	Title     string   `json:"title"`
	Keywords  []uint64 `json:"keywords,omitempty"`
}

type predictResponse struct {
	GenreIDs []uint64 `json:"genre_ids"`
}

// Predict returns predicted genre IDs for a catalog entry.
func (c *Client) Predict(ctx context.Context, entry *domain.CatalogEntry) ([]uint64, error) {
	payload, err := json.Marshal(predictRequest{
		CatalogID: entry.ID,
		Title:     entry.Title,
		Keywords:  entry.KeywordIDs,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "marshal predict request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create predict request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstreamTransient, "predict request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstreamTransient, "read predict response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, errors.UpstreamTransient("classifier error " + resp.Status)
	default:
		return nil, errors.UpstreamPermanent("classifier rejected request with " + resp.Status)
	}

	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, errors.CodeParse, "decode predict response")
	}
	return out.GenreIDs, nil
}
