package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metalake-io/insight-engine/pkg/retry"
)

func fastConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoIfRetryable_SucceedsAfterTransientFailures(t *testing.T) {
	callCount := 0
	err := retry.DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoIfRetryable_ExhaustsRetries(t *testing.T) {
	callCount := 0
	wantErr := errors.New("HTTP 503 Service Unavailable")
	err := retry.DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
	if callCount != 4 { // initial attempt + 3 retries
		t.Errorf("expected 4 calls, got %d", callCount)
	}
}

func TestDoIfRetryable_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.DoIfRetryable(ctx, fastConfig(), func() error {
		return errors.New("i/o timeout")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"503", errors.New("HTTP 503 Service Unavailable"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"auth failure", errors.New("HTTP 401 Unauthorized"), false},
		{"bad request", errors.New("HTTP 400 Bad Request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDoIfRetryable_StopsOnPermanentError(t *testing.T) {
	callCount := 0
	err := retry.DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return errors.New("HTTP 401 Unauthorized")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", callCount)
	}
}
