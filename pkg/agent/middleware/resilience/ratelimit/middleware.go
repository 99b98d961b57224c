// Package ratelimit throttles LLM calls with a token bucket and a concurrency cap.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/middleware/metrics"
)

// Config defines request-rate limiting for one provider.
type Config struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
	MaxConcurrency    int `yaml:"max_concurrency"`
}

// Limiter combines a request token bucket with a concurrency semaphore.
type Limiter struct {
	bucket *rate.Limiter
	slots  chan struct{}
}

// NewLimiter builds a limiter. Zero RequestsPerMinute means unlimited rate;
// zero MaxConcurrency means unlimited concurrency.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}
	if cfg.MaxConcurrency > 0 {
		l.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	return l
}

// Acquire blocks until a request may proceed. The returned release must be called.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.bucket.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if l.slots == nil {
		return func() {}, nil
	}
	select {
	case l.slots <- struct{}{}:
		return func() { <-l.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("concurrency slot wait: %w", ctx.Err())
	}
}

// Middleware acquires a slot from limiter before each call and records the
// wait through recorder.
func Middleware(limiter *Limiter, recorder metrics.Recorder) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				release, err := limiter.Acquire(ctx)
				if err != nil {
					recorder.IncThrottle(next.GetModelName(), "rate_limit")
					return llm.CompletionResponse{}, err
				}
				defer release()
				recorder.ObserveQueueWait(next.GetModelName(), time.Since(start))
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}
