package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"rate limit", errors.New("HTTP 429 Too Many Requests"), ErrorTypeRateLimit},
		{"auth", errors.New("401 unauthorized"), ErrorTypeAuth},
		{"bad prompt", errors.New("400 invalid request: prompt too long"), ErrorTypeBadPrompt},
		{"server", errors.New("503 service unavailable"), ErrorTypeTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"classified", NewError(ErrorTypeEmptyResponse, "nothing"), ErrorTypeEmptyResponse},
		{"other", errors.New("something odd"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !NewError(ErrorTypeTransient, "x").IsRetryable() {
		t.Error("transient errors should be retryable")
	}
	if NewError(ErrorTypeAuth, "x").IsRetryable() {
		t.Error("auth errors should not be retryable")
	}

	cause := errors.New("boom")
	su := NewServiceUnavailableError(cause, 3)
	if su.IsRetryable() || !Is(su, ErrorTypeServiceUnavailable) || !errors.Is(su, cause) {
		t.Errorf("unexpected service unavailable error: %v", su)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]ErrorType{
		429: ErrorTypeRateLimit,
		401: ErrorTypeAuth,
		400: ErrorTypeBadPrompt,
		502: ErrorTypeTransient,
		302: ErrorTypeUnknown,
	}
	for status, want := range cases {
		if got := ClassifyStatus(status); got != want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
