// Package agent builds the LLM client used by the classifier, the responder
// and the reply summarizer, wrapped in the resilience and metrics middleware.
package agent

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"slackagent/pkg/agent/internal/llmimpl/anthropic"
	"slackagent/pkg/agent/internal/llmimpl/google"
	"slackagent/pkg/agent/internal/llmimpl/ollama"
	"slackagent/pkg/agent/internal/llmimpl/openaiofficial"
	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/agent/middleware/resilience/ratelimit"
	"slackagent/pkg/agent/middleware/resilience/retry"
	"slackagent/pkg/agent/middleware/resilience/timeout"
	"slackagent/pkg/agent/middleware/validation"
	"slackagent/pkg/config"
	"slackagent/pkg/logx"
)

// ErrNoProvider is returned when llm.provider is "none".
var ErrNoProvider = errors.New("no LLM provider configured")

// LLMClientFactory creates LLM clients with a configured middleware chain.
type LLMClientFactory struct {
	config   config.LLMConfig
	recorder metrics.Recorder
	limiter  *ratelimit.Limiter
	logger   *logx.Logger
}

// NewLLMClientFactory creates a factory. A nil registerer disables
// Prometheus recording.
func NewLLMClientFactory(cfg config.LLMConfig, reg prometheus.Registerer) *LLMClientFactory {
	recorder := metrics.Nop()
	if reg != nil {
		recorder = metrics.NewPrometheusRecorder(reg)
	}
	return &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             1,
			MaxConcurrency:    cfg.RateLimit.MaxConcurrency,
		}),
		logger: logx.NewLogger("llm"),
	}
}

// Enabled reports whether a provider is configured.
func (f *LLMClientFactory) Enabled() bool {
	return f.config.Provider != "" && f.config.Provider != config.ProviderNone
}

// CreateClient returns the configured provider client wrapped in
// metrics -> retry -> rate limit -> timeout -> empty-response check.
// All clients from one factory share a rate limiter.
func (f *LLMClientFactory) CreateClient() (llm.LLMClient, error) {
	raw, err := f.rawClient()
	if err != nil {
		return nil, err
	}
	return f.Wrap(raw), nil
}

// Wrap applies the middleware chain to an existing client.
func (f *LLMClientFactory) Wrap(raw llm.LLMClient) llm.LLMClient {
	retryConfig := retry.DefaultConfig
	if f.config.Retry.MaxAttempts > 0 {
		retryConfig.MaxAttempts = f.config.Retry.MaxAttempts
	}
	if f.config.Retry.InitialDelay > 0 {
		retryConfig.InitialDelay = f.config.Retry.InitialDelay
	}
	if f.config.Retry.MaxDelay > 0 {
		retryConfig.MaxDelay = f.config.Retry.MaxDelay
	}

	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(retry.NewPolicy(retryConfig, nil)),
		ratelimit.Middleware(f.limiter, f.recorder),
	}
	if f.config.Timeout > 0 {
		middlewares = append(middlewares, timeout.Middleware(f.config.Timeout))
	}
	middlewares = append(middlewares, validation.EmptyResponseMiddleware())
	return llm.Chain(raw, middlewares...)
}

func (f *LLMClientFactory) rawClient() (llm.LLMClient, error) {
	switch f.config.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(f.config.APIKey, f.config.Model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(f.config.APIKey, f.config.Model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(f.config.APIKey, f.config.Model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(f.config.Host, f.config.Model), nil
	case "", config.ProviderNone:
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unsupported provider: %s", f.config.Provider)
	}
}
