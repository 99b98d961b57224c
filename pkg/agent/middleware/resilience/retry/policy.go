// Package retry provides retry logic with exponential backoff for LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"slackagent/pkg/agent/llmerrors"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts   int           `yaml:"max_attempts"` // including the initial attempt
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// DefaultConfig provides reasonable defaults.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. Cancellation is never retried.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch llmerrors.Classify(err) {
	case llmerrors.ErrorTypeRateLimit, llmerrors.ErrorTypeTransient, llmerrors.ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Policy encapsulates retry configuration and classification.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a retry policy. A nil classifier uses ShouldRetry.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{Config: config, Classifier: classifier}
}

// CalculateDelay computes the backoff before the given attempt (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		sign := 1
		if time.Now().UnixNano()%2 == 0 {
			sign = -1
		}
		delay += time.Duration(float64(delay) * 0.1 * float64(sign))
	}
	return delay
}

func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
