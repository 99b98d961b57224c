// Package llm provides the completion client interface shared by the classifier,
// SQL generator, code researcher, and response summarizer.
package llm

import (
	"context"
	"strings"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds responses for routing, SQL and summary prompts.
	DefaultMaxTokens = 2048

	// TemperatureDefault is used for analysis and summaries.
	TemperatureDefault = 0.3

	// TemperatureDeterministic is used for classification and SQL generation.
	TemperatureDeterministic = 0.0
)

// CompletionMessage is one message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// LLMClient generates completions.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	GetModelName() string
}

// NewCompletionRequest returns a request with default token and temperature settings.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// Prompt is a convenience for the common system+user request shape.
func Prompt(system, user string, temperature float32) CompletionRequest {
	msgs := make([]CompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, NewSystemMessage(system))
	}
	msgs = append(msgs, NewUserMessage(user))
	req := NewCompletionRequest(msgs)
	req.Temperature = temperature
	return req
}

// SplitSystem separates system messages from the conversation. Providers that
// take the system prompt out of band use this.
func SplitSystem(messages []CompletionMessage) (system string, rest []CompletionMessage) {
	var parts []string
	for i := range messages {
		if messages[i].Role == RoleSystem {
			parts = append(parts, messages[i].Content)
			continue
		}
		rest = append(rest, messages[i])
	}
	return strings.Join(parts, "\n\n"), rest
}

// PromptText flattens all message content, used for token estimation.
func PromptText(req CompletionRequest) string {
	var b strings.Builder
	for i := range req.Messages {
		b.WriteString(req.Messages[i].Content)
		b.WriteString("\n")
	}
	return b.String()
}
