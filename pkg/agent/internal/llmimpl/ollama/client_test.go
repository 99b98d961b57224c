package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"

	"slackagent/pkg/agent/llm"
	"slackagent/pkg/agent/llmerrors"
)

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		if got := getStopReason(&tt.resp); got != tt.want {
			t.Errorf("getStopReason(%+v) = %q, want %q", tt.resp, got, tt.want)
		}
	}
}

func TestCompleteAgainstStubServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req api.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		reply := api.ChatResponse{
			Model:      req.Model,
			Message:    api.Message{Role: "assistant", Content: "SELECT COUNT(*) FROM users"},
			Done:       true,
			DoneReason: "stop",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "llama3")
	resp, err := client.Complete(context.Background(), llm.Prompt("sql only", "count users", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "SELECT COUNT(*) FROM users" || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEmptyMessages(t *testing.T) {
	client := NewOllamaClientWithModel("", "llama3")
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if !llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
		t.Fatalf("expected bad prompt error, got %v", err)
	}
}
