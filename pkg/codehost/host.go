// Package codehost is the code research capability: code search, file content
// and issue listing against GitHub (gh CLI), a local git repository, or an MCP
// tool server.
package codehost

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a path does not exist on the host.
	ErrNotFound = errors.New("not found on code host")

	// ErrUnsupported is returned by backends without the requested operation.
	ErrUnsupported = errors.New("operation not supported by code host")
)

// Match is one code search hit.
type Match struct {
	Repo string `json:"repo"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// Issue is an open issue on the host.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	State  string `json:"state,omitempty"`
}

// Host reads code and issues. An empty repo means the host's default
// repository.
type Host interface {
	Name() string
	SearchCode(ctx context.Context, term string, limit int) ([]Match, error)
	FetchContent(ctx context.Context, repo, path string) (string, error)
	ListIssues(ctx context.Context, limit int) ([]Issue, error)
}
