// Package assistant runs mention tasks end to end: it resolves the source
// link, drives the workflow, posts the reply, records metrics and hands the
// finished run to the history writer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slackagent/pkg/logx"
	"slackagent/pkg/mention"
	"slackagent/pkg/persistence"
	"slackagent/pkg/workflow"
)

// ErrDraining is returned by Submit once shutdown has begun.
var ErrDraining = errors.New("assistant is shutting down")

// Runner executes one workflow request.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) *workflow.RequestState
}

// Poster delivers replies to the chat platform.
type Poster interface {
	PostReply(ctx context.Context, channelID, userID, text, threadTS string) bool
}

// Linker resolves the link of the source message.
type Linker func(ctx context.Context, channelID, ts string) string

// ReplyObserver counts reply deliveries.
type ReplyObserver interface {
	ObserveReply(delivered bool)
}

// RunSink stores finished runs without blocking.
type RunSink interface {
	Submit(run *persistence.Run) bool
}

// Option configures a Service.
type Option func(*Service)

func WithPoster(p Poster) Option               { return func(s *Service) { s.poster = p } }
func WithLinker(l Linker) Option               { return func(s *Service) { s.linker = l } }
func WithReplyObserver(o ReplyObserver) Option { return func(s *Service) { s.replies = o } }
func WithRunSink(r RunSink) Option             { return func(s *Service) { s.runs = r } }

// Result is the outcome of one handled task.
type Result struct {
	Snapshot  workflow.Snapshot
	Delivered bool
	Duration  time.Duration
}

// Service handles mention tasks. Asynchronous runs started by Submit are
// tracked so Drain can wait for them.
type Service struct {
	runner  Runner
	poster  Poster
	linker  Linker
	replies ReplyObserver
	runs    RunSink
	logger  *logx.Logger

	// base outlives the request that submitted a task; cancel aborts the
	// remaining steps of in-flight runs after the drain grace period.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New returns a service around runner.
func New(runner Runner, opts ...Option) *Service {
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		runner: runner,
		linker: func(_ context.Context, channelID, ts string) string {
			return fmt.Sprintf("slack://channel?id=%s&message=%s", channelID, ts)
		},
		logger: logx.NewLogger("assistant"),
		base:   base,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs task and posts the reply into its thread.
func (s *Service) Handle(ctx context.Context, task mention.Task) Result {
	return s.handle(ctx, task, true)
}

// Direct runs task and returns the reply without posting it.
func (s *Service) Direct(ctx context.Context, task mention.Task) (Result, error) {
	if err := task.Validate(); err != nil {
		return Result{}, err
	}
	return s.handle(ctx, task, false), nil
}

func (s *Service) handle(ctx context.Context, task mention.Task, post bool) Result {
	started := time.Now()
	ctx = logx.WithRequestID(ctx, task.ID)

	link := s.linker(ctx, task.ChannelID, task.Timestamp)
	state := s.runner.Run(ctx, task.Request(link))
	snap := state.Snapshot()

	delivered := false
	if post && s.poster != nil {
		delivered = s.poster.PostReply(context.WithoutCancel(ctx), task.ChannelID, task.UserID,
			snap.FinalResponse, task.ReplyThread())
		if s.replies != nil {
			s.replies.ObserveReply(delivered)
		}
		if !delivered {
			s.logger.Warn("⚠️ Reply for %s was not delivered", task.ID)
		}
	}

	res := Result{Snapshot: snap, Delivered: delivered, Duration: time.Since(started)}
	if s.runs != nil {
		s.runs.Submit(&persistence.Run{
			Snapshot:       snap,
			ReplyDelivered: delivered,
			StartedAt:      started,
			Duration:       res.Duration,
		})
	}
	return res
}

// Submit validates task and handles it in the background. It implements
// slackbot.Sink.
func (s *Service) Submit(_ context.Context, task mention.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrDraining
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		s.Handle(s.base, task)
	}()
	return nil
}

// Consume is a queue handler that processes task synchronously.
func (s *Service) Consume(ctx context.Context, task mention.Task) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return ErrDraining
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.Handle(ctx, task)
	return nil
}

// Drain stops intake and waits for in-flight runs. When ctx ends first the
// runs are cancelled, which sends them straight to formatting, and Drain
// waits for their replies before returning ctx's error.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("✅ All in-flight requests drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("⚠️ Drain grace period over, cancelling in-flight requests")
		s.cancel()
		<-done
		return fmt.Errorf("drain: %w", ctx.Err())
	}
}
