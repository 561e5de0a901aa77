// errors.go - Typed outcomes for recognition engine calls

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// CallError is a categorized engine failure. The cascade decides its
// next transition from the category and the Retryable flag instead of
// inspecting raw provider errors.
type CallError struct {
	Engine     string
	Category   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: [%s] %s (status: %d, retryable: %v)",
		e.Engine, e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *CallError) Unwrap() error { return e.Err }

// Categorize wraps a raw engine error into a CallError.
func Categorize(engineName string, err error) *CallError {
	if err == nil {
		return nil
	}

	ce := &CallError{
		Engine:   engineName,
		Category: "unknown",
		Message:  err.Error(),
		Err:      err,
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		ce.StatusCode = apiErr.Code
		switch apiErr.Code {
		case 400:
			ce.Category = "bad_request"
		case 401, 403:
			ce.Category = "unauthorized"
		case 404:
			ce.Category = "not_found"
		case 413:
			ce.Category = "payload_too_large"
		case 429:
			ce.Category = "rate_limit"
			ce.Retryable = true
		case 500, 502, 503, 504:
			ce.Category = "server_error"
			ce.Retryable = true
		default:
			ce.Category = "api_error"
			ce.Retryable = apiErr.Code >= 500
		}
		return ce
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ce.Category = "timeout"
		ce.Retryable = true
		return ce
	}
	if errors.Is(err, context.Canceled) {
		ce.Category = "canceled"
		return ce
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		ce.Category = "quota_exceeded"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		ce.Category = "timeout"
		ce.Retryable = true
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		ce.Category = "network_error"
		ce.Retryable = true
	}
	return ce
}

// RetryConfig defines backoff behavior for remote engine calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig keeps retries short: the cascade has its own
// fallback layers above this.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// Backoff returns the delay before the given retry attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffMultiple
	}
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}
