package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"slackagent/internal/mocks"
	"slackagent/pkg/agent/llm"
)

func TestTimeoutCancelsSlowCall(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}

	client := llm.Chain(mock, Middleware(20*time.Millisecond))
	start := time.Now()
	_, err := client.Complete(context.Background(), llm.Prompt("", "q", 0))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout middleware did not bound the call")
	}
}

func TestZeroDurationPassesThrough(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	if Middleware(0)(mock) != llm.LLMClient(mock) {
		t.Fatal("zero duration should not wrap the client")
	}
}
