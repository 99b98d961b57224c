// Package openaiofficial implements llm.LLMClient on the OpenAI Responses API.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/llmerrors"
)

// OfficialClient wraps the official OpenAI SDK.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a client for model.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// buildInput sends system messages as instructions and flattens the rest
// into a single input string.
func buildInput(messages []llm.CompletionMessage) (instructions, input string) {
	instructions, rest := llm.SplitSystem(messages)
	var b strings.Builder
	for i := range rest {
		if rest[i].Role == llm.RoleAssistant {
			fmt.Fprintf(&b, "Assistant: %s\n\n", rest[i].Content)
			continue
		}
		b.WriteString(rest[i].Content)
		if i < len(rest)-1 {
			b.WriteString("\n\n")
		}
	}
	return instructions, b.String()
}

// Complete implements llm.LLMClient.
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := buildInput(in.Messages)
	if strings.TrimSpace(input) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "no user input")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(float64(in.Temperature))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return llm.CompletionResponse{}, &llmerrors.Error{
				Type:       llmerrors.ClassifyStatus(apiErr.StatusCode),
				StatusCode: apiErr.StatusCode,
				Err:        err,
				Message:    "OpenAI Responses API failed",
			}
		}
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.Classify(err), err, "OpenAI Responses API failed")
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	stop := "end_turn"
	if resp.Status == "incomplete" {
		stop = "max_tokens"
	}
	return llm.CompletionResponse{Content: resp.OutputText(), StopReason: stop}, nil
}

func (o *OfficialClient) GetModelName() string {
	return o.model
}
