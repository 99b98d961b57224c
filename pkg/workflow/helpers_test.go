package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

type staticClassifier RouteDecision

func (c staticClassifier) Classify(context.Context, string) RouteDecision {
	return RouteDecision(c)
}

type stubResponder struct {
	reply string
	err   error
}

func (r stubResponder) Respond(context.Context, string) (string, error) {
	return r.reply, r.err
}

type stubGenerator struct {
	sql string
	err error
}

func (g stubGenerator) GenerateSQL(context.Context, string) (string, error) {
	return g.sql, g.err
}

type stubConfirmer struct {
	status ConfirmationStatus
	mu     sync.Mutex
	seen   []ConfirmationRequest
}

func (c *stubConfirmer) Confirm(_ context.Context, req ConfirmationRequest) ConfirmationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, req)
	return c.status
}

type stubExecutor struct {
	res   QueryResult
	err   error
	mu    sync.Mutex
	calls []string
}

func (e *stubExecutor) Execute(_ context.Context, q ApprovedSQL) (QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if q.IsZero() {
		return QueryResult{}, ErrNotApproved
	}
	e.calls = append(e.calls, q.SQL())
	return e.res, e.err
}

func (e *stubExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type stubResearcher string

func (r stubResearcher) Research(context.Context, string) string { return string(r) }

type stubTasks struct {
	rec   TaskRecord
	skip  bool
	err   error
	calls int
}

func (s *stubTasks) MaybeCreateTask(_ context.Context, _ RouteDecision, _ string, _ Request) (fn.Option[TaskRecord], error) {
	s.calls++
	if s.err != nil {
		return fn.None[TaskRecord](), s.err
	}
	if s.skip {
		return fn.None[TaskRecord](), nil
	}
	return fn.Some(s.rec), nil
}

// joinFormatter concatenates transcript contents in order.
type joinFormatter struct{}

func (joinFormatter) Format(_ context.Context, transcript []StepMessage) (string, error) {
	parts := make([]string, 0, len(transcript))
	for _, m := range transcript {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}

type failingFormatter struct {
	text string
}

func (f failingFormatter) Format(context.Context, []StepMessage) (string, error) {
	return f.text, errors.New("summarizer unavailable")
}

type panickingResearcher struct{}

func (panickingResearcher) Research(context.Context, string) string { panic("boom") }

type panickingFormatter struct{}

func (panickingFormatter) Format(context.Context, []StepMessage) (string, error) { panic("boom") }
