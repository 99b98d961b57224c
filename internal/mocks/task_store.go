package mocks

import (
	"context"
	"fmt"
	"sync"

	"slackagent/pkg/workflow"
)

// MockTaskStore implements tasks.Store in memory.
type MockTaskStore struct {
	// CreateFunc overrides the default behavior when set.
	CreateFunc func(ctx context.Context, rec workflow.TaskRecord) (string, string, error)

	Created []workflow.TaskRecord

	mu sync.Mutex
}

// NewMockTaskStore returns a store that accepts every task and numbers them.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{}
}

// Create records rec and returns id "T-<n>".
func (m *MockTaskStore) Create(ctx context.Context, rec workflow.TaskRecord) (string, string, error) {
	m.mu.Lock()
	m.Created = append(m.Created, rec)
	n := len(m.Created)
	fn := m.CreateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, rec)
	}
	id := fmt.Sprintf("T-%d", n)
	return id, "https://tasks.example.com/" + id, nil
}

// CreateCount returns the number of Create calls.
func (m *MockTaskStore) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}
