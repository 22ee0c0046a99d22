package social

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownPlatform is returned for a platform outside the supported set.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrNotRegistered is returned when no adapter is registered for a platform.
	ErrNotRegistered = errors.New("platform not registered")
)

// MissingCredentialsError is returned when required credential fields are missing.
type MissingCredentialsError struct {
	Provider Platform
	Fields   []string
}

func (e MissingCredentialsError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Fields, ", "))
}

// ValidationError captures a request that violates a platform limit. It is
// raised before any network call.
type ValidationError struct {
	Provider Platform
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s: %s", e.Provider, e.Field, e.Reason)
}

// AuthenticationError is returned when the provider rejects the credentials.
type AuthenticationError struct {
	Provider   Platform
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError is returned when the provider throttles the caller.
type RateLimitError struct {
	Provider Platform
	Message  string
	// RetryAfter is the provider's suggested wait in seconds, if it sent one.
	RetryAfter *int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("%s rate limited (retry after %ds): %s", e.Provider, *e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
}

// ProviderError is any other non-success answer from the provider.
type ProviderError struct {
	Provider   Platform
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s request failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Classify maps a transport level failure to the error taxonomy.
func Classify(p Platform, status int, retryAfter *int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{Provider: p, StatusCode: status, Message: message}
	case http.StatusTooManyRequests:
		return &RateLimitError{Provider: p, Message: message, RetryAfter: retryAfter}
	default:
		return &ProviderError{Provider: p, StatusCode: status, Message: message}
	}
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as an
// HTTP date.
func ParseRetryAfter(h http.Header) *int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return &secs
	}
	if at, err := http.ParseTime(v); err == nil {
		secs := int(time.Until(at).Seconds())
		if secs < 0 {
			secs = 0
		}
		return &secs
	}
	return nil
}

// Kind names the taxonomy bucket of err, as reported in failure details.
func Kind(err error) string {
	var (
		vErr  *ValidationError
		aErr  *AuthenticationError
		rErr  *RateLimitError
		pErr  *ProviderError
		mcErr MissingCredentialsError
	)
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &aErr):
		return "authentication"
	case errors.As(err, &rErr):
		return "rate_limit"
	case errors.As(err, &pErr):
		return "provider"
	case errors.As(err, &mcErr):
		return "credentials"
	default:
		return "internal"
	}
}

// Details extracts the structured failure details of err.
func Details(err error) map[string]any {
	details := map[string]any{"kind": Kind(err)}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		details["field"] = vErr.Field
	}
	var aErr *AuthenticationError
	if errors.As(err, &aErr) {
		details["status_code"] = aErr.StatusCode
	}
	var rErr *RateLimitError
	if errors.As(err, &rErr) {
		details["status_code"] = http.StatusTooManyRequests
		if rErr.RetryAfter != nil {
			details["retry_after"] = *rErr.RetryAfter
		}
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) && pErr.StatusCode != 0 {
		details["status_code"] = pErr.StatusCode
	}
	var mcErr MissingCredentialsError
	if errors.As(err, &mcErr) {
		details["fields"] = mcErr.Fields
	}
	return details
}
