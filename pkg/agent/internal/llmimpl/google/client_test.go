package google

import (
	"testing"

	"google.golang.org/genai"

	"slackagent/pkg/agent/llm"
)

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("classify"),
		llm.NewUserMessage("hello"),
		{Role: llm.RoleAssistant, Content: "simple"},
		llm.NewUserMessage("again"),
	})

	if system != "classify" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[1].Role != genai.RoleModel {
		t.Errorf("unexpected roles: %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestGetStopReason(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}}}
	if got := getStopReason(resp); got != "max_tokens" {
		t.Errorf("got %q", got)
	}
	if got := getStopReason(&genai.GenerateContentResponse{}); got != "unknown" {
		t.Errorf("got %q", got)
	}
}
