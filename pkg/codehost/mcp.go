package codehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"slackagent/pkg/logx"
	"slackagent/pkg/version"
)

// Tool names shared by MCPHost and Server.
const (
	ToolSearchCode   = "search_code"
	ToolFileContents = "get_file_contents"
	ToolListIssues   = "list_issues"
)

// SearchCodeArgs are the arguments for the search_code tool.
type SearchCodeArgs struct {
	Query string `json:"query" jsonschema:"Text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of files to return"`
}

// SearchCodeResult is the result of the search_code tool.
type SearchCodeResult struct {
	Matches []Match `json:"matches"`
}

// FileContentsArgs are the arguments for the get_file_contents tool.
type FileContentsArgs struct {
	Repo string `json:"repo,omitempty" jsonschema:"owner/repo, empty for the default repository"`
	Path string `json:"path" jsonschema:"File path relative to the repository root"`
}

// FileContentsResult is the result of the get_file_contents tool.
type FileContentsResult struct {
	Content string `json:"content"`
}

// ListIssuesArgs are the arguments for the list_issues tool.
type ListIssuesArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of issues to return"`
}

// ListIssuesResult is the result of the list_issues tool.
type ListIssuesResult struct {
	Issues []Issue `json:"issues"`
}

// Server exposes a Host as MCP tools.
type Server struct {
	server *mcp.Server
	host   Host
}

// NewServer registers the code host tools for host.
func NewServer(host Host) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "slackagent-codehost", Version: version.Version}, nil),
		host:   host,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSearchCode,
		Description: "Search repository files for a term",
	}, s.handleSearchCode)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolFileContents,
		Description: "Read a file from the repository",
	}, s.handleFileContents)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolListIssues,
		Description: "List open issues",
	}, s.handleListIssues)

	return s
}

// Run serves the tools on transport until the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// Connect starts a session on transport without blocking.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, transport, nil)
}

func (s *Server) handleSearchCode(ctx context.Context,
	_ *mcp.CallToolRequest, args SearchCodeArgs) (*mcp.CallToolResult, SearchCodeResult, error) {

	matches, err := s.host.SearchCode(ctx, args.Query, args.Limit)
	if err != nil {
		return nil, SearchCodeResult{}, err
	}
	if matches == nil {
		matches = []Match{}
	}
	return nil, SearchCodeResult{Matches: matches}, nil
}

func (s *Server) handleFileContents(ctx context.Context,
	_ *mcp.CallToolRequest, args FileContentsArgs) (*mcp.CallToolResult, FileContentsResult, error) {

	content, err := s.host.FetchContent(ctx, args.Repo, args.Path)
	if err != nil {
		return nil, FileContentsResult{}, err
	}
	return nil, FileContentsResult{Content: content}, nil
}

func (s *Server) handleListIssues(ctx context.Context,
	_ *mcp.CallToolRequest, args ListIssuesArgs) (*mcp.CallToolResult, ListIssuesResult, error) {

	issues, err := s.host.ListIssues(ctx, args.Limit)
	if err != nil {
		return nil, ListIssuesResult{}, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return nil, ListIssuesResult{Issues: issues}, nil
}

// MCPHost calls code host tools on an MCP server.
type MCPHost struct {
	session *mcp.ClientSession
	name    string
	logger  *logx.Logger
	mu      sync.Mutex
}

// ConnectMCP opens a client session over transport.
func ConnectMCP(ctx context.Context, name string, transport mcp.Transport) (*MCPHost, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "slackagent", Version: version.Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP code host %s: %w", name, err)
	}
	return &MCPHost{session: session, name: name, logger: logx.NewLogger("codehost")}, nil
}

// StartMCPCommand launches command (argv) and connects to it over stdio.
func StartMCPCommand(ctx context.Context, command []string) (*MCPHost, error) {
	if len(command) == 0 {
		return nil, errors.New("empty MCP command")
	}
	//nolint:gosec // command comes from operator config
	cmd := exec.Command(command[0], command[1:]...)
	return ConnectMCP(ctx, strings.Join(command, " "), &mcp.CommandTransport{Command: cmd})
}

func (h *MCPHost) Name() string { return "mcp:" + h.name }

// Close ends the session.
func (h *MCPHost) Close() error {
	return h.session.Close()
}

func (h *MCPHost) call(ctx context.Context, tool string, args, out any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	text := toolText(res)
	if res.IsError {
		if strings.Contains(text, ErrNotFound.Error()) {
			return fmt.Errorf("%s: %w", tool, ErrNotFound)
		}
		if strings.Contains(text, ErrUnsupported.Error()) {
			return fmt.Errorf("%s: %w", tool, ErrUnsupported)
		}
		return fmt.Errorf("%s failed: %s", tool, text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("%s: failed to parse result: %w", tool, err)
	}
	return nil
}

func toolText(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func (h *MCPHost) SearchCode(ctx context.Context, term string, limit int) ([]Match, error) {
	var out SearchCodeResult
	if err := h.call(ctx, ToolSearchCode, SearchCodeArgs{Query: term, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

func (h *MCPHost) FetchContent(ctx context.Context, repo, path string) (string, error) {
	var out FileContentsResult
	if err := h.call(ctx, ToolFileContents, FileContentsArgs{Repo: repo, Path: path}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (h *MCPHost) ListIssues(ctx context.Context, limit int) ([]Issue, error) {
	var out ListIssuesResult
	if err := h.call(ctx, ToolListIssues, ListIssuesArgs{Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}
