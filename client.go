package thingsboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultTokenTimeout is how long a login token is reused before the
	// client logs in again.
	DefaultTokenTimeout = 10 * time.Minute

	// DefaultPageSize is the page size requested by GetPaged.
	DefaultPageSize = 100
)

// RetryConfig configures automatic retry behavior for transient failures.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3).
	MaxRetries int
	// InitialBackoff is the initial backoff duration (default: 100ms).
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration (default: 5s).
	MaxBackoff time.Duration
	// Multiplier is the backoff multiplier (default: 2.0).
	Multiplier float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Client is a ThingsBoard REST API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	username    string
	password    string
	httpClient  *http.Client
	retryConfig *RetryConfig
	logger      *zap.Logger
	limiter     *rate.Limiter
	cacheConfig *CacheConfig
	tokens      *tokenSource
	rest        Transport

	publicMu sync.Mutex
	publicID *CustomerId
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP request timeout.
// This option can be applied in any order relative to other options.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithRetry enables automatic retry with the given configuration.
// Retries are attempted on rate limits (429), server errors (5xx), and timeouts.
func WithRetry(config *RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = config
	}
}

// WithTokenTimeout sets how long a login token is trusted. A shorter expiry
// carried in the token itself always wins.
func WithTokenTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.tokens.timeout = d
	}
}

// WithToken seeds the client with a token obtained elsewhere. When the token
// expires the client falls back to logging in with its credentials.
func WithToken(token string) Option {
	return func(c *Client) {
		c.tokens.seed(token)
	}
}

// WithTransport replaces the REST collaborator used by every resource call.
// Tests use it to serve canned responses without an HTTP server.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.rest = t
	}
}

// NewClient creates a new ThingsBoard API client for the server at baseURL
// (for example "https://demo.thingsboard.io"). No request is made until the
// first call; the login happens lazily and is cached.
func NewClient(baseURL, username, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyURL
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: zap.NewNop(),
	}
	c.tokens = newTokenSource(DefaultTokenTimeout, c.login)
	c.rest = c

	for _, opt := range opts {
		opt(c)
	}

	if (c.username == "" || c.password == "") && !c.tokens.seeded() && c.rest == Transport(c) {
		return nil, ErrEmptyCredentials
	}
	return c, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthToken returns a valid API token, logging in if the cached one expired.
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// Get performs an authenticated GET and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.doWithRetry(ctx, http.MethodGet, path, nil)
}

// Post performs an authenticated POST. A nil body sends no payload; string,
// []byte and json.RawMessage bodies are sent verbatim, anything else is
// JSON-encoded. An empty response body is returned as {}.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := c.doWithRetry(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return data, nil
}

// Delete performs an authenticated DELETE. It reports false without error
// when the server answers 404.
func (c *Client) Delete(ctx context.Context, path string) (bool, error) {
	_, err := c.doWithRetry(ctx, http.MethodDelete, path, nil)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// get, post, delete and getPaged route resource calls through the Transport.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.rest.Get(ctx, path)
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.rest.Post(ctx, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (bool, error) {
	return c.rest.Delete(ctx, path)
}

func (c *Client) getPaged(ctx context.Context, path string) ([]json.RawMessage, error) {
	return c.rest.GetPaged(ctx, path)
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do performs an HTTP request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	data, err := c.send(ctx, method, path, body, token)
	if IsUnauthorized(err) && c.username != "" {
		// The server may drop a token before our local expiry; log in once more.
		c.tokens.invalidate(token)
		if token, err = c.tokens.Token(ctx); err != nil {
			return nil, err
		}
		data, err = c.send(ctx, method, path, body, token)
	}
	return data, err
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqBody, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token != "" {
		req.Header.Set("X-Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	c.LogRequest(method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.LogResponse(method, path, 0, time.Since(start), err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := c.handleError(resp, respBody, method, path)
		c.LogResponse(method, path, resp.StatusCode, time.Since(start), apiErr)
		return nil, apiErr
	}
	c.LogResponse(method, path, resp.StatusCode, time.Since(start), nil)
	return respBody, nil
}

// handleError converts HTTP error responses to appropriate errors.
func (c *Client) handleError(resp *http.Response, body []byte, method, path string) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Path:       path,
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
	}
	var errResp struct {
		Status    int    `json:"status"`
		Message   string `json:"message"`
		ErrorCode int    `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		apiErr.Message = errResp.Message
		apiErr.ErrorCode = errResp.ErrorCode
	} else {
		apiErr.Message = truncatePreview(body)
	}
	return apiErr
}

// doWithRetry performs a request with automatic retry on transient failures.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body any) ([]byte, error) {
	if c.retryConfig == nil {
		return c.do(ctx, method, path, body)
	}

	var lastErr error
	backoff := c.retryConfig.InitialBackoff

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		data, err := c.do(ctx, method, path, body)
		if err == nil {
			return data, nil
		}

		if !c.isRetryable(err) {
			return nil, err
		}

		lastErr = err

		if attempt < c.retryConfig.MaxRetries {
			wait := backoff
			var rle *RateLimitError
			if errors.As(err, &rle) && rle.RetryAfter > wait {
				wait = min(rle.RetryAfter, c.retryConfig.MaxBackoff)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				backoff = time.Duration(float64(backoff) * c.retryConfig.Multiplier)
				if backoff > c.retryConfig.MaxBackoff {
					backoff = c.retryConfig.MaxBackoff
				}
			}
		}
	}

	return nil, lastErr
}

// isRetryable returns true if the error is a transient failure worth retrying.
func (c *Client) isRetryable(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	if IsTimeout(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}
	return false
}
