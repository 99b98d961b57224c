package openaiofficial

import (
	"testing"

	"slackagent/pkg/agent/llm"
)

func TestBuildInput(t *testing.T) {
	instructions, input := buildInput([]llm.CompletionMessage{
		llm.NewSystemMessage("Write SQL only."),
		llm.NewUserMessage("count users"),
		{Role: llm.RoleAssistant, Content: "SELECT 1"},
		llm.NewUserMessage("with a filter"),
	})

	if instructions != "Write SQL only." {
		t.Errorf("instructions = %q", instructions)
	}
	want := "count users\n\nAssistant: SELECT 1\n\nwith a filter"
	if input != want {
		t.Errorf("input = %q, want %q", input, want)
	}
}
