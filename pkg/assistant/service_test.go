package assistant_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/internal/mocks"
	"slackagent/pkg/assistant"
	"slackagent/pkg/classifier"
	"slackagent/pkg/formatter"
	"slackagent/pkg/mention"
	"slackagent/pkg/persistence"
	"slackagent/pkg/workflow"
)

type recordingRuns struct {
	mu   sync.Mutex
	runs []*persistence.Run
}

func (r *recordingRuns) Submit(run *persistence.Run) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return true
}

func (r *recordingRuns) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type countingReplies struct {
	sent, failed int
}

func (c *countingReplies) ObserveReply(delivered bool) {
	if delivered {
		c.sent++
	} else {
		c.failed++
	}
}

func newOrchestrator(t *testing.T) *workflow.Orchestrator {
	t.Helper()
	o, err := workflow.New(classifier.NewHeuristic(), formatter.New())
	require.NoError(t, err)
	return o
}

func newTask(text string) mention.Task {
	return mention.New(text, "U1", "C1", "100.1", "99.0", mention.SourceSlack)
}

func TestHandlePostsReplyAndRecordsRun(t *testing.T) {
	poster := mocks.NewMockPoster()
	runs := &recordingRuns{}
	replies := &countingReplies{}
	var linked string
	svc := assistant.New(newOrchestrator(t),
		assistant.WithPoster(poster),
		assistant.WithRunSink(runs),
		assistant.WithReplyObserver(replies),
		assistant.WithLinker(func(_ context.Context, ch, ts string) string {
			linked = ch + "/" + ts
			return "https://acme.slack.com/archives/C1/p1001"
		}),
	)

	task := newTask("<@UBOT> こんにちは")
	res := svc.Handle(context.Background(), task)

	assert.True(t, res.Delivered)
	assert.Equal(t, "C1/100.1", linked)
	assert.Equal(t, task.ID, res.Snapshot.ID)
	assert.Equal(t, "こんにちは", res.Snapshot.Query)
	assert.NotEmpty(t, res.Snapshot.FinalResponse)

	got := poster.Replies()
	require.Len(t, got, 1)
	assert.Equal(t, "U1", got[0].UserID)
	assert.Equal(t, "99.0", got[0].ThreadTS)
	assert.Equal(t, res.Snapshot.FinalResponse, got[0].Text)

	assert.Equal(t, 1, replies.sent)
	require.Equal(t, 1, runs.count())
	assert.True(t, runs.runs[0].ReplyDelivered)
}

func TestHandleCountsFailedDelivery(t *testing.T) {
	poster := &mocks.MockPoster{Fail: true}
	replies := &countingReplies{}
	svc := assistant.New(newOrchestrator(t), assistant.WithPoster(poster), assistant.WithReplyObserver(replies))

	res := svc.Handle(context.Background(), newTask("hello"))
	assert.False(t, res.Delivered)
	assert.Equal(t, 1, replies.failed)
	assert.Len(t, poster.Replies(), 1, "failed replies are not retried")
}

func TestDirectDoesNotPost(t *testing.T) {
	poster := mocks.NewMockPoster()
	svc := assistant.New(newOrchestrator(t), assistant.WithPoster(poster))

	res, err := svc.Direct(context.Background(), newTask("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Snapshot.FinalResponse)
	assert.Empty(t, poster.Replies())

	_, err = svc.Direct(context.Background(), newTask("<@UBOT>"))
	assert.ErrorIs(t, err, mention.ErrEmptyQuery)
}

func TestSubmitThenDrain(t *testing.T) {
	poster := mocks.NewMockPoster()
	svc := assistant.New(newOrchestrator(t), assistant.WithPoster(poster))

	for range 3 {
		require.NoError(t, svc.Submit(context.Background(), newTask("hello")))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
	assert.Len(t, poster.Replies(), 3)

	assert.ErrorIs(t, svc.Submit(context.Background(), newTask("late")), assistant.ErrDraining)
	assert.ErrorIs(t, svc.Consume(context.Background(), newTask("late")), assistant.ErrDraining)
}

// blockingRunner waits for cancellation, then returns an empty state.
type blockingRunner struct {
	started chan struct{}
}

func (b blockingRunner) Run(ctx context.Context, req workflow.Request) *workflow.RequestState {
	close(b.started)
	<-ctx.Done()
	return workflow.NewRequestState(req)
}

func TestDrainCancelsAfterGrace(t *testing.T) {
	runner := blockingRunner{started: make(chan struct{})}
	svc := assistant.New(runner)

	require.NoError(t, svc.Submit(context.Background(), newTask("slow")))
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Drain(ctx), context.DeadlineExceeded)
}

func TestSubmitRejectsInvalidTask(t *testing.T) {
	svc := assistant.New(newOrchestrator(t))
	bad := newTask("hi")
	bad.ChannelID = ""
	assert.Error(t, svc.Submit(context.Background(), bad))
}
