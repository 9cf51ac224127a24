package search

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Network error kinds.
const (
	KindTimeout    = "timeout"
	KindConnection = "connection"
	KindServer     = "server"
)

// ErrNetwork indicates a transient transport failure or a 5xx response.
type ErrNetwork struct {
	Kind string
	Err  error
}

func (e ErrNetwork) Error() string {
	return fmt.Errorf("network %s: %w", e.Kind, e.Err).Error()
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the search API throttled the request.
type ErrRateLimited struct {
	RetryAfter time.Duration
	Err        error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrMalformedResponse indicates a body that does not match the search schema.
type ErrMalformedResponse struct {
	Err error
}

func (e ErrMalformedResponse) Error() string {
	return fmt.Errorf("malformed response: %w", e.Err).Error()
}

func (e ErrMalformedResponse) Unwrap() error {
	return e.Err
}

// ErrUnexpectedStatus indicates a non-retryable HTTP status.
type ErrUnexpectedStatus struct {
	StatusCode int
}

func (e ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var netErr ErrNetwork
	if errors.As(err, &netErr) {
		return true
	}
	var rateLimited ErrRateLimited
	return errors.As(err, &rateLimited)
}

// Reason returns a short human-readable summary of err suitable for reports.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var netErr ErrNetwork
	if errors.As(err, &netErr) {
		switch netErr.Kind {
		case KindTimeout:
			return "request timeout"
		case KindServer:
			return "server error"
		default:
			return "connection error"
		}
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate limited"
	}
	var malformed ErrMalformedResponse
	if errors.As(err, &malformed) {
		return "malformed response"
	}
	var status ErrUnexpectedStatus
	if errors.As(err, &status) {
		return fmt.Sprintf("unexpected status %d", status.StatusCode)
	}
	// Typed errors come first: transport timeouts also match
	// context.DeadlineExceeded.
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline exceeded"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "search failed"
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var netErr ErrNetwork
	if errors.As(err, &netErr) {
		return netErr.Kind
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var malformed ErrMalformedResponse
	if errors.As(err, &malformed) {
		return "malformed"
	}
	var status ErrUnexpectedStatus
	if errors.As(err, &status) {
		return "status"
	}
	return "other"
}
