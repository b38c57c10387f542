package claudeauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Refresher exchanges a refresh token for new token material. Any non-2xx
// response or malformed body is a refresh failure; retry policy belongs to
// the caller, not here.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error)
}

// HTTPRefresher refreshes tokens against the OAuth token endpoint.
type HTTPRefresher struct {
	tokenEndpoint string
	clientID      string
	httpClient    *http.Client
}

// HTTPRefresherOptions configures an HTTPRefresher. Zero values fall back to
// the Anthropic console endpoint and a default client.
type HTTPRefresherOptions struct {
	TokenEndpoint string
	ClientID      string
	HTTPClient    *http.Client
}

// NewHTTPRefresher creates a token refresher.
func NewHTTPRefresher(opts HTTPRefresherOptions) *HTTPRefresher {
	if opts.TokenEndpoint == "" {
		opts.TokenEndpoint = anthropicTokenEndpoint
	}
	if opts.ClientID == "" {
		opts.ClientID = anthropicOAuthClientID
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &HTTPRefresher{
		tokenEndpoint: opts.TokenEndpoint,
		clientID:      opts.ClientID,
		httpClient:    opts.HTTPClient,
	}
}

// Refresh performs the grant_type=refresh_token exchange. When the server
// omits refresh_token from the response, the current one is carried over.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	if refreshToken == "" {
		return nil, &RefreshError{Detail: "refresh token is empty"}
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     r.clientID,
	})
	if err != nil {
		return nil, &RefreshError{Detail: "marshal refresh body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RefreshError{Detail: "build refresh request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &RefreshError{Detail: "refresh request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		return nil, &RefreshError{Status: resp.Status, Detail: strings.TrimSpace(string(respBody))}
	}

	var tokenResp struct {
		AccessToken  string   `json:"access_token"`
		RefreshToken string   `json:"refresh_token"`
		ExpiresIn    int64    `json:"expires_in"`
		ExpiresAt    int64    `json:"expires_at,omitempty"` // absolute unix seconds
		Scope        string   `json:"scope,omitempty"`
		Scopes       []string `json:"scopes,omitempty"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&tokenResp); err != nil {
		return nil, &RefreshError{Detail: "decode refresh response", Err: err}
	}

	if tokenResp.AccessToken == "" {
		return nil, &RefreshError{Detail: "refresh response missing access_token"}
	}

	rec := &TokenRecord{AccessToken: tokenResp.AccessToken}

	if tokenResp.RefreshToken != "" {
		rec.RefreshToken = tokenResp.RefreshToken
	} else {
		rec.RefreshToken = refreshToken
	}

	now := time.Now()
	switch {
	case tokenResp.ExpiresAt > 0:
		rec.ExpiresAt = time.Unix(tokenResp.ExpiresAt, 0)
	case tokenResp.ExpiresIn > 0:
		rec.ExpiresAt = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	default:
		return nil, &RefreshError{Detail: "refresh response missing expiry"}
	}

	switch {
	case len(tokenResp.Scopes) > 0:
		rec.Scopes = tokenResp.Scopes
	case tokenResp.Scope != "":
		rec.Scopes = strings.Fields(tokenResp.Scope)
	}

	if err := rec.Validate(); err != nil {
		return nil, &RefreshError{Detail: "refresh response unusable", Err: err}
	}
	return rec, nil
}

var _ Refresher = (*HTTPRefresher)(nil)
