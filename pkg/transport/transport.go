// Package transport is the shape-agnostic HTTP client every provider
// driver shares: a plain Get/Post for non-streaming calls and an
// EventSource for SSE streams, both sharing one RetryPolicy and one
// header-composition path. A 401 triggers a single credential refresh and
// retry before the failure surfaces.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"forgecore/pkg/apierr"
	"forgecore/pkg/sse"
)

// RetryPolicy parameterizes the retry loop every provider translator shares.
type RetryPolicy struct {
	// StatusSet lists HTTP statuses worth retrying, beyond 429 and 5xx which
	// are always retried.
	StatusSet      map[int]bool
	InitialBackoff time.Duration
	Factor         float64
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
}

// DefaultRetryPolicy retries the transient status set with exponential
// backoff, capped per attempt and in attempt count.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 300 * time.Millisecond,
		Factor:         2.0,
		MinDelay:       100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		MaxAttempts:    3,
	}
}

func (p RetryPolicy) retryable(status int) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	return p.StatusSet[status]
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := p.InitialBackoff
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 2.0
	}
	d := backoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < p.MinDelay {
		d = p.MinDelay
	}
	return d
}

// AuthStyle selects how credentials are attached to a request, matching the
// distinct composition pkg/auth/auth.go and the registry's provider entries
// require per vendor.
type AuthStyle int

const (
	// AuthBearer sets "Authorization: Bearer <token>".
	AuthBearer AuthStyle = iota
	// AuthAPIKeyHeader sets a named header (e.g. "x-api-key") to the raw token.
	AuthAPIKeyHeader
	// AuthQueryParam appends the token as a URL query parameter (Google AI Studio).
	AuthQueryParam
)

// CredentialSource supplies the bearer/API-key value and any vendor-specific
// headers a request needs, so transport never imports a concrete auth.Store.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	ExtraHeaders(ctx context.Context) map[string]string
	// Refresh attempts to obtain a new token after a 401; returns false if
	// refresh is unsupported or unavailable.
	Refresh(ctx context.Context) bool
}

// Client issues HTTP requests with shared retry, auth, and header-sanitizing
// logic. Safe for concurrent use; holds no mutable per-request state.
type Client struct {
	HTTPClient  *http.Client
	BaseURL     string
	AuthStyle   AuthStyle
	AuthHeader  string // header name when AuthStyle == AuthAPIKeyHeader
	QueryParam  string // query param name when AuthStyle == AuthQueryParam
	Credentials CredentialSource
	UserAgent   string
	Retry       RetryPolicy
}

// New builds a Client with a default *http.Client and DefaultRetryPolicy
// when the zero values are left unset.
func New(baseURL string, creds CredentialSource) *Client {
	return &Client{
		HTTPClient:  http.DefaultClient,
		BaseURL:     baseURL,
		Credentials: creds,
		Retry:       DefaultRetryPolicy(),
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Post issues a JSON POST to path (relative to BaseURL), retrying per Retry
// and refreshing credentials once on a single 401.
func (c *Client) Post(ctx context.Context, path string, body []byte, extraHeaders map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body, extraHeaders)
}

// Get issues a GET request under the same retry/auth rules as Post.
func (c *Client) Get(ctx context.Context, path string, extraHeaders map[string]string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, extraHeaders)
}

// EventSource issues a POST and parses the response body as a text/event-stream,
// invoking onEvent for every frame sse.ParseStream decodes.
func (c *Client) EventSource(ctx context.Context, path string, body []byte, extraHeaders map[string]string, onEvent func(sse.Event) error) error {
	resp, err := c.Post(ctx, path, body, extraHeaders)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return sse.ParseStream(resp.Body, onEvent)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string) (*http.Response, error) {
	url := path
	if !strings.Contains(path, "://") {
		url = strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if c.AuthStyle == AuthQueryParam && c.Credentials != nil {
		token, err := c.Credentials.Token(ctx)
		if err != nil {
			return nil, apierr.New(apierr.CredentialMissing, "resolve credential", err)
		}
		param := c.QueryParam
		if param == "" {
			param = "key"
		}
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = fmt.Sprintf("%s%s%s=%s", url, sep, param, token)
	}

	refreshed := false
	attempt := 0
	for {
		resp, err := c.attempt(ctx, method, url, body, extraHeaders)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && !refreshed && c.Credentials != nil {
			drain(resp)
			if c.Credentials.Refresh(ctx) {
				refreshed = true
				continue
			}
			return nil, apierr.New(apierr.ProviderHTTP, "unauthorized and refresh unavailable", nil).
				WithHTTPContext(method, url, resp.StatusCode)
		}
		if c.Retry.retryable(resp.StatusCode) && attempt < maxAttempts(c.Retry) {
			drain(resp)
			if d := c.Retry.delay(attempt + 1); d > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(d):
				}
			}
			attempt++
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
			return nil, apierr.New(apierr.ProviderHTTP, strings.TrimSpace(string(msg)), nil).
				WithHTTPContext(method, url, resp.StatusCode)
		}
		return resp, nil
	}
}

func maxAttempts(p RetryPolicy) int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, extraHeaders map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apierr.New(apierr.Transport, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if err := c.applyAuth(ctx, req); err != nil {
		return nil, err
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if c.Credentials != nil {
		for k, v := range c.Credentials.ExtraHeaders(ctx) {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, apierr.New(apierr.Transport, "request failed", err)
	}
	return resp, nil
}

func (c *Client) applyAuth(ctx context.Context, req *http.Request) error {
	if c.Credentials == nil || c.AuthStyle == AuthQueryParam {
		return nil
	}
	token, err := c.Credentials.Token(ctx)
	if err != nil {
		return apierr.New(apierr.CredentialMissing, "resolve credential", err)
	}
	switch c.AuthStyle {
	case AuthAPIKeyHeader:
		header := c.AuthHeader
		if header == "" {
			header = "x-api-key"
		}
		req.Header.Set(header, token)
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// sensitiveHeaders lists header names SanitizeHeaders redacts case-insensitively.
var sensitiveHeaders = map[string]bool{
	"authorization":      true,
	"x-api-key":          true,
	"x-goog-api-key":     true,
	"chatgpt-account-id": true,
	"cookie":             true,
	"set-cookie":         true,
}

// SanitizeHeaders returns a copy of headers with sensitive values replaced
// by "[redacted]", safe to include in debug logs.
func SanitizeHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for k, values := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = []string{"[redacted]"}
			continue
		}
		out[k] = append([]string(nil), values...)
	}
	return out
}
