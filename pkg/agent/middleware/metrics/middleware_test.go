package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"slackagent/internal/mocks"
	"slackagent/pkg/agent/llm"
)

func TestMiddlewareRecordsSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(reg)

	mock := mocks.NewMockLLMClient()
	client := llm.Chain(mock, Middleware(recorder, nil, nil))

	ctx := WithOperation(context.Background(), "classify")
	if _, err := client.Complete(ctx, llm.Prompt("sys", "hello world", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, errors.New("429 rate limited")
	}
	if _, err := client.Complete(ctx, llm.Prompt("sys", "again", 0)); err == nil {
		t.Fatal("expected error to pass through")
	}

	ok := testutil.ToFloat64(recorder.requestsTotal.WithLabelValues(mock.GetModelName(), "classify", statusSuccess, ""))
	failed := testutil.ToFloat64(recorder.requestsTotal.WithLabelValues(mock.GetModelName(), "classify", statusError, "rate_limit"))
	if ok != 1 || failed != 1 {
		t.Fatalf("requests_total success=%v error=%v", ok, failed)
	}
	if tokens := testutil.ToFloat64(recorder.tokensTotal.WithLabelValues(mock.GetModelName(), "classify", "prompt")); tokens <= 0 {
		t.Fatalf("expected prompt tokens to be counted, got %v", tokens)
	}
}

func TestOperationDefault(t *testing.T) {
	if got := OperationFrom(context.Background()); got != "unknown" {
		t.Fatalf("OperationFrom = %q", got)
	}
}
