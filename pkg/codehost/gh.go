package codehost

import (
	"context"
	"strings"

	"slackagent/pkg/github"
)

// GHHost serves research from GitHub through the gh CLI.
type GHHost struct {
	client *github.Client
}

// NewGHHost wraps client.
func NewGHHost(client *github.Client) *GHHost {
	return &GHHost{client: client}
}

func (h *GHHost) Name() string { return "gh:" + h.client.RepoPath() }

func (h *GHHost) SearchCode(ctx context.Context, term string, limit int) ([]Match, error) {
	hits, err := h.client.SearchCode(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(hits))
	for i := range hits {
		repo := hits[i].Repo()
		if repo == "" {
			repo = h.client.RepoPath()
		}
		out = append(out, Match{Repo: repo, Path: hits[i].Path, URL: hits[i].URL})
	}
	return out, nil
}

func (h *GHHost) FetchContent(ctx context.Context, repo, path string) (string, error) {
	content, err := h.client.GetFileContent(ctx, repo, path)
	if err != nil && strings.Contains(err.Error(), "Not Found") {
		return "", ErrNotFound
	}
	return content, err
}

func (h *GHHost) ListIssues(ctx context.Context, limit int) ([]Issue, error) {
	issues, err := h.client.ListIssues(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, Issue{Number: is.Number, Title: is.Title, URL: is.URL, State: is.State})
	}
	return out, nil
}
