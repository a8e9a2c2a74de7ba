package catalog

import (
	"context"
	"encoding/json/v2"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/questlogapp/questlog-server/internal/errors"
)

// expirySlack refreshes tokens slightly before the upstream expiry so that
// in-flight requests never race the cutoff.
const expirySlack = time.Minute

// tokenSource manages the client-credentials access token for the upstream
// API, caching it until shortly before expiry.
type tokenSource struct {
	http         *http.Client
	tokenURL     string
	clientID     string
	clientSecret string

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(httpClient *http.Client, tokenURL, clientID, clientSecret string) *tokenSource {
	return &tokenSource{
		http:         httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// token is missing or near expiry.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expires.Add(-expirySlack)) {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeUpstreamTransient, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeUpstreamTransient, "read token response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return "", errors.UpstreamTransient("token endpoint error " + resp.Status)
	default:
		return "", errors.UpstreamPermanent("token request rejected with " + resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errors.Wrap(err, errors.CodeParse, "decode token response")
	}
	if payload.AccessToken == "" {
		return "", errors.Parse("token response missing access_token")
	}

	t.token = payload.AccessToken
	t.expires = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return t.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
