package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the default base URL for the customs data API.
const DefaultBaseURL = "http://localhost:8000"

// DefaultTimeout is the blanket timeout applied to every request.
const DefaultTimeout = 60 * time.Second

// apiPrefix is prepended to every endpoint path.
const apiPrefix = "/api/v1"

// RequestIDHeader carries a per-call correlation id.
const RequestIDHeader = "X-Request-ID"

// TokenSource supplies the bearer token attached to outgoing requests.
// An empty token means the request is sent unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// Client is a customs data API client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func()
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the blanket request timeout, keeping the transport of the
// HTTP client configured so far.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Transport: c.httpClient.Transport, Timeout: d}
	}
}

// New creates a new customs data API client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSession binds the token source and the 401 handler. The session owner
// usually needs the client to exist first, so this is set after New.
func (c *Client) SetSession(tokens TokenSource, onUnauthorized func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	c.onUnauthorized = onUnauthorized
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) session() (string, func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var token string
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	return token, c.onUnauthorized
}

// request describes one outgoing call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	anonymous   bool // never attach the session token
}

// do executes a request and decodes a JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, r request, result any) error {
	start := time.Now()
	requestID := uuid.NewString()

	u, err := url.Parse(c.baseURL + apiPrefix + r.path)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	token, onUnauthorized := c.session()
	if r.anonymous {
		token = ""
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Debug("HTTP request failed",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return &NetworkError{Method: r.method, Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := parseError(resp)
		apiErr.RequestID = requestID
		slog.Debug("HTTP request returned error",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.String("request_id", requestID),
			slog.Int("status", resp.StatusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		// Only a request that carried credentials can invalidate a session.
		if resp.StatusCode == http.StatusUnauthorized && token != "" && onUnauthorized != nil {
			onUnauthorized()
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &DecodeError{Path: r.path, Err: err}
		}
	}

	slog.Debug("HTTP request completed",
		slog.String("method", r.method),
		slog.String("path", r.path),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query}, result)
}

// sendJSON performs a request with a JSON-encoded payload.
func (c *Client) sendJSON(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, request{method: method, path: path, body: body, contentType: contentType}, result)
}

// postForm performs an unauthenticated form-encoded POST.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, result any) error {
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		anonymous:   true,
	}, result)
}
