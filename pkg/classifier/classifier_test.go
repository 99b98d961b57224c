package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/internal/mocks"
	"slackagent/pkg/workflow"
)

func TestHeuristicRoutes(t *testing.T) {
	tests := []struct {
		query            string
		data, code, task bool
	}{
		{"How many users signed up last week?", true, false, false},
		{"login redirect is broken after auth", false, true, true},
		{"hello", false, false, false},
		{"先週の売上を集計して", true, false, false},
		{"auth/handler.go のコードを確認して", false, true, false},
		{"決済でバグが出ています", false, true, true},
		{"create a ticket for the flaky deploy", false, true, true},
		{"How many errors did the checkout code raise yesterday?", true, true, false},
		{"debugging tips?", false, false, false},
	}
	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d := h.Classify(context.Background(), tt.query)
			assert.Equal(t, tt.data, d.NeedsDataLookup, "data")
			assert.Equal(t, tt.code, d.NeedsCodeReview, "code")
			assert.Equal(t, tt.task, d.NeedsTaskCreation, "task")
			assert.NotEmpty(t, d.Reason)
			assert.False(t, d.Fallback)
		})
	}
}

func TestHeuristicExplainsAddedCodeReview(t *testing.T) {
	d := NewHeuristic().Classify(context.Background(), "create a ticket for the flaky deploy")
	assert.True(t, d.NeedsCodeReview)
	assert.Contains(t, d.Reason, "code review added for the task")
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Sure!\n```json\n{\"needs_data_lookup\": true, \"needs_code_review\": false, \"needs_task_creation\": false, \"reason\": \"asks for a count\"}\n```")
	require.NoError(t, err)
	assert.True(t, d.NeedsDataLookup)
	assert.Equal(t, "asks for a count", d.Reason)

	d, err = ParseDecision(`{"needs_task_creation": true, "reason": "wants a ticket"}`)
	require.NoError(t, err)
	assert.True(t, d.NeedsTaskCreation)
	assert.False(t, d.NeedsCodeReview, "flags are kept as returned")
	assert.False(t, d.NeedsDataLookup)

	_, err = ParseDecision("data_lookup")
	require.Error(t, err)
	_, err = ParseDecision("{not json}")
	require.Error(t, err)
}

func TestLLMClassifier(t *testing.T) {
	client := mocks.NewReplyingLLMClient(`{"needs_data_lookup": false, "needs_code_review": true, "needs_task_creation": true, "reason": "bug report"}`)
	d := NewLLM(client).Classify(context.Background(), "login redirect is broken after auth")

	assert.True(t, d.NeedsCodeReview)
	assert.True(t, d.NeedsTaskCreation)
	assert.Equal(t, "login redirect is broken after auth", client.LastUserMessage())
}

func TestLLMClassifierFailureFallsBackToSimpleReply(t *testing.T) {
	d := NewLLM(mocks.NewFailingLLMClient(errors.New("503 overloaded"))).Classify(context.Background(), "How many users?")
	assert.True(t, d.IsSimple())
	assert.True(t, d.Fallback)
	assert.Contains(t, d.Reason, "503 overloaded")

	d = NewLLM(mocks.NewReplyingLLMClient("I think it's data")).Classify(context.Background(), "q")
	assert.True(t, d.IsSimple())
	assert.True(t, d.Fallback)
}

func TestChainUsesSecondaryOnFailure(t *testing.T) {
	chain := NewChain(NewLLM(mocks.NewFailingLLMClient(errors.New("timeout"))), NewHeuristic())
	d := chain.Classify(context.Background(), "How many users signed up last week?")

	assert.True(t, d.NeedsDataLookup)
	assert.True(t, d.Fallback)
	assert.Contains(t, d.Reason, "timeout")

	ok := NewChain(staticRoute{NeedsCodeReview: true}, NewHeuristic()).Classify(context.Background(), "hello")
	assert.True(t, ok.NeedsCodeReview)
	assert.False(t, ok.Fallback)
}

type staticRoute workflow.RouteDecision

func (s staticRoute) Classify(context.Context, string) workflow.RouteDecision {
	return workflow.RouteDecision(s)
}

func TestResponder(t *testing.T) {
	reply, err := NewResponder(mocks.NewReplyingLLMClient("  こんにちは！  ")).Respond(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは！", reply)

	_, err = NewResponder(mocks.NewFailingLLMClient(errors.New("down"))).Respond(context.Background(), "hello")
	require.Error(t, err)
}
