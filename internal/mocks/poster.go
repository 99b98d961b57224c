package mocks

import (
	"context"
	"sync"
)

// PostedReply is one call to MockPoster.PostReply.
type PostedReply struct {
	ChannelID string
	UserID    string
	Text      string
	ThreadTS  string
}

// MockPoster records replies. Set Fail to simulate delivery failures.
type MockPoster struct {
	Fail bool

	mu      sync.Mutex
	replies []PostedReply
}

// NewMockPoster returns a poster that accepts every reply.
func NewMockPoster() *MockPoster {
	return &MockPoster{}
}

// PostReply records the reply and reports !Fail.
func (m *MockPoster) PostReply(_ context.Context, channelID, userID, text, threadTS string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, PostedReply{ChannelID: channelID, UserID: userID, Text: text, ThreadTS: threadTS})
	return !m.Fail
}

// Replies returns a copy of the recorded replies.
func (m *MockPoster) Replies() []PostedReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PostedReply(nil), m.replies...)
}
