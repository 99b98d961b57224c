package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/internal/mocks"
	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/llmerrors"
	"slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/config"
)

func fastRetry() config.RetryConfig {
	return config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestMetricsRecorderSelection(t *testing.T) {
	f := NewLLMClientFactory(config.LLMConfig{}, nil)
	_, isNop := f.recorder.(*metrics.NoopRecorder)
	assert.True(t, isNop, "nil registerer should use the no-op recorder")

	f = NewLLMClientFactory(config.LLMConfig{}, prometheus.NewRegistry())
	_, isProm := f.recorder.(*metrics.PrometheusRecorder)
	assert.True(t, isProm)
}

func TestCreateClientProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  error
	}{
		{name: "none", provider: config.ProviderNone, wantErr: ErrNoProvider},
		{name: "empty", provider: "", wantErr: ErrNoProvider},
		{name: "anthropic", provider: config.ProviderAnthropic},
		{name: "openai", provider: config.ProviderOpenAI},
		{name: "ollama", provider: config.ProviderOllama},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewLLMClientFactory(config.LLMConfig{Provider: tt.provider, Model: "test-model", APIKey: "k"}, nil)
			client, err := f.CreateClient()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, f.Enabled())
				return
			}
			require.NoError(t, err)
			assert.True(t, f.Enabled())
			assert.Equal(t, "test-model", client.GetModelName())
		})
	}
}

func TestCreateClientUnknownProvider(t *testing.T) {
	_, err := NewLLMClientFactory(config.LLMConfig{Provider: "bedrock"}, nil).CreateClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestWrapRetriesEmptyResponse(t *testing.T) {
	base := mocks.NewMockLLMClient()
	calls := 0
	base.CompleteFunc = func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return llm.CompletionResponse{Content: "  "}, nil
		}
		return llm.CompletionResponse{Content: "data_lookup"}, nil
	}

	client := NewLLMClientFactory(config.LLMConfig{Retry: fastRetry()}, nil).Wrap(base)
	resp, err := client.Complete(context.Background(), llm.Prompt("", "q", 0))
	require.NoError(t, err)
	assert.Equal(t, "data_lookup", resp.Content)
	assert.Equal(t, 2, base.CallCount())
}

func TestWrapDoesNotRetryAuthFailure(t *testing.T) {
	base := mocks.NewFailingLLMClient(llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"))
	client := NewLLMClientFactory(config.LLMConfig{Retry: fastRetry()}, nil).Wrap(base)

	_, err := client.Complete(context.Background(), llm.Prompt("", "q", 0))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, base.CallCount())
}

func TestWrapTimeout(t *testing.T) {
	base := mocks.NewMockLLMClient()
	base.CompleteFunc = func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	}
	cfg := config.LLMConfig{Timeout: 20 * time.Millisecond, Retry: config.RetryConfig{MaxAttempts: 1}}
	client := NewLLMClientFactory(cfg, nil).Wrap(base)

	start := time.Now()
	_, err := client.Complete(context.Background(), llm.Prompt("", "q", 0))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWrapRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := NewLLMClientFactory(config.LLMConfig{}, reg).Wrap(mocks.NewReplyingLLMClient("ok"))

	ctx := metrics.WithOperation(context.Background(), "classify")
	_, err := client.Complete(ctx, llm.Prompt("", "q", 0))
	require.NoError(t, err)

	_, err = NewLLMClientFactory(config.LLMConfig{}, nil).Wrap(mocks.NewFailingLLMClient(errors.New("x"))).
		Complete(context.Background(), llm.Prompt("", "q", 0))
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "llm_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
