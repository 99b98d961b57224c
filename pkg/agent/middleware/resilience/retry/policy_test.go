package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"slackagent/pkg/agent/llmerrors"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("op: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("http call: %w", context.DeadlineExceeded), true},
		{"auth", llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid api key"), false},
		{"bad prompt", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"), false},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"), true},
		{"transient", llmerrors.NewError(llmerrors.ErrorTypeTransient, "overloaded"), true},
		{"empty response", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "blank"), true},
		{"wrapped auth", fmt.Errorf("call: %w", llmerrors.NewError(llmerrors.ErrorTypeAuth, "x")), false},
		{"unclassified 503", errors.New("status 503 service unavailable"), true},
		{"unclassified 401", errors.New("401 unauthorized"), false},
		{"unknown", errors.New("something odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(Config{}, nil)
	assert.Equal(t, 1, p.Config.MaxAttempts)
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))

	custom := NewPolicy(DefaultConfig, func(error) bool { return false })
	assert.False(t, custom.ShouldRetry(context.DeadlineExceeded))
}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2,
	}, nil)

	assert.Zero(t, p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, p.CalculateDelay(4), "capped at MaxDelay")
}

func TestCalculateDelayJitterStaysWithinTenPercent(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2, Jitter: true}, nil)
	for range 20 {
		d := p.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}
