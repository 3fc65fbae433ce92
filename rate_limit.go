package thingsboard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitError provides detailed information about a rate limit response.
// It includes the recommended wait time from the Retry-After header if available.
type RateLimitError struct {
	// RetryAfter is the recommended wait duration from the Retry-After header.
	// Zero if the header was not present.
	RetryAfter time.Duration

	// Path is the request path that was throttled.
	Path string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	msg := "thingsboard: rate limited"
	if e.Path != "" {
		msg += " on " + e.Path
	}
	if e.RetryAfter > 0 {
		msg += " (retry after " + e.RetryAfter.String() + ")"
	}
	return msg
}

// Is allows errors.Is() to match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// parseRetryAfter parses the Retry-After header value.
// It handles both delta-seconds (e.g., "120") and HTTP-date formats.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := time.Parse(time.RFC1123, value); err == nil {
		delta := time.Until(t)
		if delta > 0 {
			return delta
		}
	}

	return 0
}

// WithRateLimit throttles outgoing requests to rps requests per second with
// the given burst. ThingsBoard tenants commonly run with per-tenant REST
// limits; staying under them avoids 429 responses altogether.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WaitForRateLimitErr waits based on a RateLimitError's RetryAfter duration.
// If the error is not a RateLimitError, it returns immediately.
//
// Example:
//
//	_, err := client.GetAllDevices(ctx, nil)
//	if err != nil {
//	    if waitErr := client.WaitForRateLimitErr(ctx, err); waitErr != nil {
//	        return waitErr // Context canceled
//	    }
//	    // Retry the call
//	}
func (c *Client) WaitForRateLimitErr(ctx context.Context, err error) error {
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		return nil
	}

	waitDuration := rle.RetryAfter
	if waitDuration <= 0 {
		waitDuration = time.Second
	}

	// Cap wait at reasonable maximum (5 minutes)
	if waitDuration > 5*time.Minute {
		waitDuration = 5 * time.Minute
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitDuration):
		return nil
	}
}
