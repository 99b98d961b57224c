// Package github reads code and issues and files issues through the gh CLI.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"slackagent/pkg/logx"
)

// Runner executes a gh command and returns its combined output.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Client provides GitHub operations via the gh CLI.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Client struct {
	owner   string
	repo    string
	logger  *logx.Logger
	timeout time.Duration
	runner  Runner
}

// NewClient creates a new GitHub client for the specified repository.
func NewClient(owner, repo string) *Client {
	return NewClientWithRunner(owner, repo, execGH)
}

// NewClientWithRunner creates a client that sends commands to runner.
func NewClientWithRunner(owner, repo string, runner Runner) *Client {
	return &Client{
		owner:   owner,
		repo:    repo,
		logger:  logx.NewLogger("github"),
		timeout: 30 * time.Second,
		runner:  runner,
	}
}

// NewClientFromRemote creates a GitHub client by parsing a git remote URL.
func NewClientFromRemote(remoteURL string) (*Client, error) {
	owner, repo, err := ParseGitHubURL(remoteURL)
	if err != nil {
		return nil, err
	}
	return NewClient(owner, repo), nil
}

// WithTimeout returns a new client with the specified timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	clone := *c
	clone.timeout = timeout
	return &clone
}

func (c *Client) Owner() string { return c.owner }
func (c *Client) Repo() string  { return c.repo }

// RepoPath returns the owner/repo path.
func (c *Client) RepoPath() string {
	return fmt.Sprintf("%s/%s", c.owner, c.repo)
}

func execGH(ctx context.Context, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, "gh", args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gh command failed: %w\nOutput: %s", err, string(output))
	}
	return output, nil
}

// run executes a gh command and returns the output.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Executing: gh %s", strings.Join(args, " "))
	output, err := c.runner(ctx, args...)
	if err != nil {
		c.logger.Debug("Command failed: %v", err)
		return nil, err
	}
	return output, nil
}

// runJSON executes a gh command and unmarshals the JSON response.
func (c *Client) runJSON(ctx context.Context, result any, args ...string) error {
	output, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if len(output) == 0 {
		return nil
	}
	if err := json.Unmarshal(output, result); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nOutput: %s", err, string(output))
	}
	return nil
}

// ParseGitHubURL extracts owner and repo from various GitHub URL formats.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	var path string
	switch {
	case strings.HasPrefix(url, "git@github.com:"):
		path = strings.TrimPrefix(url, "git@github.com:")
	case strings.HasPrefix(url, "https://github.com/"):
		path = strings.TrimPrefix(url, "https://github.com/")
	default:
		return "", "", fmt.Errorf("unsupported Git URL format: %s", url)
	}
	parts := strings.Split(strings.TrimSuffix(path, ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub URL format: %s", url)
	}
	return parts[0], parts[1], nil
}

// SplitRepo parses "owner/repo".
func SplitRepo(full string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(full, "/")
	return owner, repo, ok && owner != "" && repo != "" && !strings.Contains(repo, "/")
}

// CheckAuth verifies that the gh CLI is authenticated.
func (c *Client) CheckAuth(ctx context.Context) error {
	if _, err := c.run(ctx, "auth", "status"); err != nil {
		return fmt.Errorf("gh auth check failed: %w", err)
	}
	return nil
}

// Preflight checks authentication and that the repository is reachable.
func (c *Client) Preflight(ctx context.Context) error {
	if err := c.CheckAuth(ctx); err != nil {
		return err
	}
	if !c.RepoExists(ctx) {
		return fmt.Errorf("repository %s not found or not accessible", c.RepoPath())
	}
	return nil
}
