// Package metrics records LLM call latency, token usage and failures.
package metrics

import (
	"context"
	"time"
)

// Recorder receives LLM call observations.
type Recorder interface {
	ObserveRequest(model, operation string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)
	IncThrottle(model, reason string)
	ObserveQueueWait(model string, duration time.Duration)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

// Nop returns a recorder that discards everything.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncThrottle(_, _ string) {}

func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

type operationKey struct{}

// WithOperation labels LLM calls made with ctx, e.g. "classify" or "generate_sql".
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation label, or "unknown".
func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "unknown"
}
