package tasks

import (
	"context"
	"strconv"

	"slackagent/pkg/github"
	"slackagent/pkg/workflow"
)

// GitHubIssueStore files tasks as GitHub issues.
type GitHubIssueStore struct {
	client *github.Client
	labels []string
}

// NewGitHubIssueStore returns a store creating issues with labels.
func NewGitHubIssueStore(client *github.Client, labels []string) *GitHubIssueStore {
	return &GitHubIssueStore{client: client, labels: labels}
}

// Create implements Store.
func (s *GitHubIssueStore) Create(ctx context.Context, rec workflow.TaskRecord) (string, string, error) {
	issue, err := s.client.CreateIssue(ctx, github.IssueCreateOptions{
		Title:  rec.Title,
		Body:   Markdown(rec),
		Labels: s.labels,
	})
	if err != nil {
		return "", "", err
	}
	return strconv.Itoa(issue.Number), issue.URL, nil
}
