package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// CodeMatch is one code search hit.
type CodeMatch struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
}

// Repo returns the owner/repo the match belongs to.
func (m CodeMatch) Repo() string { return m.Repository.NameWithOwner }

// SearchCode searches the client's repository for term.
func (c *Client) SearchCode(ctx context.Context, term string, limit int) ([]CodeMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	var matches []CodeMatch
	err := c.runJSON(ctx, &matches,
		"search", "code", term,
		"--repo", c.RepoPath(),
		"--json", "path,repository,url",
		"--limit", strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search code: %w", err)
	}
	return matches, nil
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
}

// GetFileContent returns the decoded content of path in repo ("owner/repo").
// An empty repo means the client's repository.
func (c *Client) GetFileContent(ctx context.Context, repo, path string) (string, error) {
	if repo == "" {
		repo = c.RepoPath()
	} else if _, _, ok := SplitRepo(repo); !ok {
		return "", fmt.Errorf("invalid repository %q, want owner/repo", repo)
	}
	var resp contentResponse
	endpoint := fmt.Sprintf("/repos/%s/contents/%s", repo, strings.TrimPrefix(path, "/"))
	if err := c.runJSON(ctx, &resp, "api", endpoint); err != nil {
		return "", fmt.Errorf("failed to get %s: %w", path, err)
	}
	if resp.Type != "" && resp.Type != "file" {
		return "", fmt.Errorf("%s is a %s, not a file", path, resp.Type)
	}
	if resp.Encoding != "base64" {
		return resp.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return string(raw), nil
}
