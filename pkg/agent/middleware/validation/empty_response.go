// Package validation rejects empty LLM responses so they can be retried.
package validation

import (
	"context"
	"strings"

	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/llmerrors"
)

// EmptyResponseMiddleware turns a blank completion into ErrorTypeEmptyResponse,
// which the retry middleware treats as retryable.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // passthrough
				}
				if strings.TrimSpace(resp.Content) == "" {
					return resp, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
						"empty completion (stop reason: "+resp.StopReason+")")
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}
