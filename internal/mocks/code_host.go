package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"slackagent/pkg/codehost"
)

// MockCodeHost implements codehost.Host over an in-memory file map.
type MockCodeHost struct {
	Files  map[string]string // path -> content
	Issues []codehost.Issue
	Repo   string

	// Err, when set, is returned by every call.
	Err error

	FetchCalls  []string
	SearchCalls []string

	mu sync.Mutex
}

// NewMockCodeHost returns a host serving files from repo "acme/api".
func NewMockCodeHost(files map[string]string) *MockCodeHost {
	return &MockCodeHost{Files: files, Repo: "acme/api"}
}

func (m *MockCodeHost) Name() string { return "mock:" + m.Repo }

// SearchCode matches term case-insensitively against path and content, in
// path order.
func (m *MockCodeHost) SearchCode(_ context.Context, term string, limit int) ([]codehost.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, term)
	if m.Err != nil {
		return nil, m.Err
	}

	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	needle := strings.ToLower(term)
	var out []codehost.Match
	for _, p := range paths {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(p), needle) || strings.Contains(strings.ToLower(m.Files[p]), needle) {
			out = append(out, codehost.Match{Repo: m.Repo, Path: p})
		}
	}
	return out, nil
}

func (m *MockCodeHost) FetchContent(_ context.Context, repo, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls = append(m.FetchCalls, repo+":"+path)
	if m.Err != nil {
		return "", m.Err
	}
	content, ok := m.Files[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", codehost.ErrNotFound, path)
	}
	return content, nil
}

func (m *MockCodeHost) ListIssues(_ context.Context, limit int) ([]codehost.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && len(m.Issues) > limit {
		return m.Issues[:limit], nil
	}
	return m.Issues, nil
}

// FetchCount returns the number of FetchContent calls.
func (m *MockCodeHost) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FetchCalls)
}
