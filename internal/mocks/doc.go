// Package mocks provides test doubles shared across packages.
//
// # Usage
//
//	import "slackagent/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    client := mocks.NewReplyingLLMClient(`{"needs_data_lookup": true}`)
//	    // Use client in test...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: llm.LLMClient with CompleteFunc and call tracking
//   - MockCodeHost: codehost.Host over an in-memory file map
//   - MockTaskStore: tasks.Store recording created tasks
//   - MockPoster: assistant.Poster recording replies
package mocks
