package validation

import (
	"context"
	"testing"

	"slackagent/internal/mocks"
	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/llmerrors"
)

func TestEmptyResponseIsClassified(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "  \n", StopReason: "max_tokens"}, nil
	}

	_, err := llm.Chain(mock, EmptyResponseMiddleware()).Complete(context.Background(), llm.Prompt("", "q", 0))
	if !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestNonEmptyPassesThrough(t *testing.T) {
	resp, err := llm.Chain(mocks.NewMockLLMClient(), EmptyResponseMiddleware()).Complete(context.Background(), llm.Prompt("", "q", 0))
	if err != nil || resp.Content == "" {
		t.Fatalf("unexpected result %q, %v", resp.Content, err)
	}
}
