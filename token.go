package thingsboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// expirySkew is subtracted from a token's own exp claim so a request never
// leaves with a token that dies in flight.
const expirySkew = 30 * time.Second

// tokenSource caches the session token. Concurrent callers that find it
// expired share one login; a refresh that races a later invalidation costs
// at most one extra login.
type tokenSource struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	timeout   time.Duration
	group     singleflight.Group
	login     func(ctx context.Context) (string, error)
	now       func() time.Time
}

func newTokenSource(timeout time.Duration, login func(ctx context.Context) (string, error)) *tokenSource {
	return &tokenSource{timeout: timeout, login: login, now: time.Now}
}

// Token returns the cached token or logs in for a new one.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	// The shared login outlives any one caller; the HTTP client timeout
	// bounds it and each caller stops waiting on its own cancellation.
	login := context.WithoutCancel(ctx)
	ch := s.group.DoChan("login", func() (any, error) {
		token, err := s.login(login)
		if err != nil {
			return "", err
		}
		s.store(token)
		return token, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *tokenSource) store(token string) {
	expires := s.now().Add(s.timeout)
	if exp, ok := tokenExpiry(token); ok && exp.Add(-expirySkew).Before(expires) {
		expires = exp.Add(-expirySkew)
	}
	s.mu.Lock()
	s.token = token
	s.expiresAt = expires
	s.mu.Unlock()
}

func (s *tokenSource) seed(token string) {
	if token != "" {
		s.store(token)
	}
}

func (s *tokenSource) seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// invalidate drops token if it is still the cached one.
func (s *tokenSource) invalidate(token string) {
	s.mu.Lock()
	if s.token == token {
		s.token = ""
		s.expiresAt = time.Time{}
	}
	s.mu.Unlock()
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client cannot verify server tokens and only needs a refresh hint.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// login exchanges the configured credentials for a JWT.
func (c *Client) login(ctx context.Context) (string, error) {
	if c.username == "" || c.password == "" {
		return "", ErrEmptyCredentials
	}
	data, err := c.send(ctx, http.MethodPost, "/api/auth/login", loginRequest{Username: c.username, Password: c.password}, "")
	if err != nil {
		c.logger.Warn("token_refresh", zap.String("user", c.username), zap.Error(err))
		return "", fmt.Errorf("login as %q: %w", c.username, err)
	}
	var resp loginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w (body: %s)", err, truncatePreview(data))
	}
	if resp.Token == "" {
		return "", ErrLoginFailed
	}
	c.logger.Debug("token_refresh", zap.String("user", c.username))
	return resp.Token, nil
}
