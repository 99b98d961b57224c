package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Issue is a GitHub issue.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	State  string `json:"state"`
}

// IssueCreateOptions describes a new issue.
type IssueCreateOptions struct {
	Title  string
	Body   string
	Labels []string
}

// ListIssues lists open issues in the client's repository.
func (c *Client) ListIssues(ctx context.Context, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = 10
	}
	var issues []Issue
	err := c.runJSON(ctx, &issues,
		"issue", "list",
		"--repo", c.RepoPath(),
		"--state", "open",
		"--json", "number,title,url,state",
		"--limit", strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// CreateIssue files an issue and returns it. gh prints the new issue URL.
func (c *Client) CreateIssue(ctx context.Context, opts IssueCreateOptions) (*Issue, error) {
	args := []string{"issue", "create", "--repo", c.RepoPath(), "--title", opts.Title, "--body", opts.Body}
	for _, l := range opts.Labels {
		args = append(args, "--label", l)
	}
	output, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	url := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unexpected gh output: %s", string(output))
	}
	issue := &Issue{Title: opts.Title, URL: url, State: "OPEN"}
	if i := strings.LastIndex(url, "/"); i >= 0 {
		issue.Number, _ = strconv.Atoi(url[i+1:])
	}
	c.logger.Info("📝 Created issue #%d in %s", issue.Number, c.RepoPath())
	return issue, nil
}

// RepoExists checks if the repository exists and is accessible.
func (c *Client) RepoExists(ctx context.Context) bool {
	_, err := c.run(ctx, "repo", "view", c.RepoPath(), "--json", "name")
	return err == nil
}
