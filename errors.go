package thingsboard

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned by the ThingsBoard client.
// All errors are defined here for easy discovery and consistent organization.
var (
	// Authentication errors
	ErrUnauthorized     = errors.New("thingsboard: unauthorized (invalid or expired token)")
	ErrForbidden        = errors.New("thingsboard: forbidden (insufficient authority)")
	ErrEmptyCredentials = errors.New("thingsboard: username and password cannot be empty")
	ErrEmptyURL         = errors.New("thingsboard: base URL cannot be empty")
	ErrLoginFailed      = errors.New("thingsboard: login response did not contain a token")
	ErrNoDeviceToken    = errors.New("thingsboard: device has no access token")
	ErrUnboundEntity    = errors.New("thingsboard: entity is not bound to a client")
	ErrNoPublicCustomer = errors.New("thingsboard: public customer not found")
	ErrNoCurrentUser    = errors.New("thingsboard: current user not found")

	// Resource errors
	ErrNotFound       = errors.New("thingsboard: resource not found")
	ErrAmbiguousMatch = errors.New("thingsboard: name matches more than one entity")

	// Rate limiting
	ErrRateLimited = errors.New("thingsboard: rate limited (too many requests)")

	// Validation errors
	ErrEmptyID    = errors.New("thingsboard: ID cannot be empty")
	ErrInvalidID  = errors.New("thingsboard: ID is not a valid GUID")
	ErrEmptyName  = errors.New("thingsboard: name cannot be empty")
	ErrEmptyKeys  = errors.New("thingsboard: at least one key is required")
	ErrEmptyScope = errors.New("thingsboard: attribute scope cannot be empty")

	// Normalization errors
	ErrMissingIdentity = errors.New("thingsboard: required identity field missing or malformed")
	ErrScopeMismatch   = errors.New("thingsboard: attribute scopes do not match")
	ErrNilAttributes   = errors.New("thingsboard: cannot merge into nil attributes")
	ErrBadTimestamp    = errors.New("thingsboard: value cannot be used as a timestamp")

	// Sort errors
	ErrUnknownSortKey  = errors.New("thingsboard: unknown sort key")
	ErrInvalidSortSpec = errors.New("thingsboard: invalid sort specification")
)

// APIError represents an error response from the ThingsBoard REST API.
// ThingsBoard replies with {"status":..., "message":..., "errorCode":...}.
type APIError struct {
	StatusCode int
	Message    string
	ErrorCode  int
	Method     string
	Path       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("thingsboard: API error %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("thingsboard: API error %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// AmbiguousMatchError is returned by single-entity lookups by name when the
// server holds several distinct entities with that exact name.
type AmbiguousMatchError struct {
	Kind  string
	Name  string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("thingsboard: %d %ss named %q", e.Count, e.Kind, e.Name)
}

func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}

// UnknownSortKeyError names the field that the sort engine could not resolve.
type UnknownSortKeyError struct {
	Field string
	Shape string
}

func (e *UnknownSortKeyError) Error() string {
	if e.Shape == "" {
		return fmt.Sprintf("thingsboard: unknown sort key %q", e.Field)
	}
	return fmt.Sprintf("thingsboard: unknown sort key %q for %s", e.Field, e.Shape)
}

func (e *UnknownSortKeyError) Is(target error) bool {
	return target == ErrUnknownSortKey
}

// HydrationError reports a response that could not be turned into an entity.
type HydrationError struct {
	Shape string
	Field string
	Err   error
}

func (e *HydrationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("thingsboard: cannot hydrate %s: %v", e.Shape, e.Err)
	}
	return fmt.Sprintf("thingsboard: cannot hydrate %s.%s: %v", e.Shape, e.Field, e.Err)
}

func (e *HydrationError) Unwrap() error {
	return e.Err
}

// IsUnauthorized returns true if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates the resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAmbiguous returns true if a by-name lookup matched several entities.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguousMatch)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
