// Package metrics exports workflow metrics to Prometheus and reads the
// aggregated series back for the stats command.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TokenUsage is LLM token consumption for one model.
type TokenUsage struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// Stats aggregates service metrics over a window.
type Stats struct {
	Window          time.Duration          `json:"window"`
	RequestsByRoute map[string]float64     `json:"requests_by_route"`
	FailuresByKind  map[string]float64     `json:"failures_by_kind"`
	Tokens          map[string]*TokenUsage `json:"tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

// byLabel runs query and maps each sample's label value to its value.
func (q *QueryService) byLabel(ctx context.Context, query string, label model.LabelName) (map[string]float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}

	out := map[string]float64{}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			out[string(sample.Metric[label])] += float64(sample.Value)
		}
	}
	return out, nil
}

// GetStats summarizes requests per route, failures per kind and LLM token
// usage per model over window.
func (q *QueryService) GetStats(ctx context.Context, window time.Duration) (*Stats, error) {
	rng := model.Duration(window).String()
	stats := &Stats{Window: window, Tokens: map[string]*TokenUsage{}}

	var err error
	stats.RequestsByRoute, err = q.byLabel(ctx,
		fmt.Sprintf(`sum by (route) (increase(%s_requests_total[%s]))`, Namespace, rng), "route")
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	stats.FailuresByKind, err = q.byLabel(ctx,
		fmt.Sprintf(`sum by (kind) (increase(%s_step_failures_total[%s]))`, Namespace, rng), "kind")
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}

	for _, typ := range []string{"prompt", "completion"} {
		perModel, err := q.byLabel(ctx,
			fmt.Sprintf(`sum by (model) (increase(llm_tokens_total{type=%q}[%s]))`, typ, rng), "model")
		if err != nil {
			return nil, fmt.Errorf("failed to query %s tokens: %w", typ, err)
		}
		for name, v := range perModel {
			usage, ok := stats.Tokens[name]
			if !ok {
				usage = &TokenUsage{Model: name}
				stats.Tokens[name] = usage
			}
			if typ == "prompt" {
				usage.PromptTokens = int64(v)
			} else {
				usage.CompletionTokens = int64(v)
			}
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}
	return stats, nil
}
