package thingsboard

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WithLogger configures a structured logger for the client.
// When set, the client will log API requests, responses and logins.
//
// Example:
//
//	logger, _ := zap.NewProduction()
//	client, _ := tb.NewClient(url, user, pass, tb.WithLogger(logger))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	}
}

// Logger returns the client's logger. It is never nil.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// LoggingTransport wraps an http.RoundTripper and logs requests/responses.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *zap.Logger
}

// RoundTrip implements http.RoundTripper with logging.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()

	if t.Logger != nil {
		t.Logger.Debug("api_request",
			zap.String("method", req.Method),
			zap.String("url", redactURL(req)),
		)
	}

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)

	if t.Logger != nil {
		if err != nil {
			t.Logger.Error("api_error",
				zap.String("method", req.Method),
				zap.String("url", redactURL(req)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			t.Logger.Log(statusLevel(resp.StatusCode, nil), "api_response",
				zap.String("method", req.Method),
				zap.String("url", redactURL(req)),
				zap.Int("status", resp.StatusCode),
				zap.Duration("duration", duration),
			)
		}
	}

	return resp, err
}

// redactURL hides device access tokens, which travel in the path of the
// device API (/api/v1/{token}/telemetry).
func redactURL(req *http.Request) string {
	return redactPath(req.URL.String())
}

func redactPath(path string) string {
	const prefix = "/api/v1/"
	i := strings.Index(path, prefix)
	if i < 0 {
		return path
	}
	rest := path[i+len(prefix):]
	j := strings.Index(rest, "/")
	if j < 0 {
		return path
	}
	return path[:i+len(prefix)] + "***" + rest[j:]
}

func statusLevel(statusCode int, err error) zapcore.Level {
	switch {
	case statusCode >= 500 || err != nil && statusCode == 0:
		return zapcore.ErrorLevel
	case statusCode >= 400:
		return zapcore.WarnLevel
	}
	return zapcore.DebugLevel
}

// LogRequest logs an API request. This is the low-level logging method
// used internally and can be used for custom request logging.
func (c *Client) LogRequest(method, path string) {
	c.logger.Debug("api_request",
		zap.String("method", method),
		zap.String("path", redactPath(path)),
	)
}

// LogResponse logs an API response. This is the low-level logging method
// used internally and can be used for custom response logging.
func (c *Client) LogResponse(method, path string, statusCode int, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", redactPath(path)),
		zap.Int("status", statusCode),
		zap.Duration("duration", duration),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Log(statusLevel(statusCode, err), "api_response", fields...)
}

// NewLoggingClient creates a client with request/response logging enabled on
// the HTTP transport as well as the client itself.
//
// Example:
//
//	logger, _ := zap.NewDevelopment()
//	client, err := tb.NewLoggingClient(url, user, pass, logger)
func NewLoggingClient(baseURL, username, password string, logger *zap.Logger, opts ...Option) (*Client, error) {
	transport := &LoggingTransport{
		Base: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Logger: logger,
	}

	httpClient := &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}

	allOpts := append([]Option{WithHTTPClient(httpClient), WithLogger(logger)}, opts...)
	return NewClient(baseURL, username, password, allOpts...)
}
