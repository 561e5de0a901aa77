package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"rate limited", &googleapi.Error{Code: 429}, "rate_limit", true},
		{"server error", &googleapi.Error{Code: 503}, "server_error", true},
		{"unauthorized", &googleapi.Error{Code: 403}, "unauthorized", false},
		{"bad request", &googleapi.Error{Code: 400}, "bad_request", false},
		{"wrapped api error", fmt.Errorf("call: %w", &googleapi.Error{Code: 500}), "server_error", true},
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"canceled", context.Canceled, "canceled", false},
		{"quota message", errors.New("quota exceeded for project"), "quota_exceeded", false},
		{"network message", errors.New("connection reset by peer"), "network_error", true},
		{"unclassified", errors.New("something odd"), "unknown", false},
	}
	for _, tt := range tests {
		got := Categorize("gemini", tt.err)
		if got.Category != tt.category {
			t.Errorf("%s: category = %q, want %q", tt.name, got.Category, tt.category)
		}
		if got.Retryable != tt.retryable {
			t.Errorf("%s: retryable = %v, want %v", tt.name, got.Retryable, tt.retryable)
		}
	}
}

func TestCategorizeNil(t *testing.T) {
	if got := Categorize("gemini", nil); got != nil {
		t.Errorf("Categorize(nil) = %v, want nil", got)
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	inner := &googleapi.Error{Code: 429}
	ce := Categorize("gemini", inner)

	var apiErr *googleapi.Error
	if !errors.As(ce, &apiErr) {
		t.Error("CallError should unwrap to the original googleapi error")
	}
}

func TestBackoff(t *testing.T) {
	c := RetryConfig{
		MaxAttempts:     5,
		InitialDelay:    time.Second,
		MaxDelay:        8 * time.Second,
		BackoffMultiple: 2.0,
	}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := c.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
