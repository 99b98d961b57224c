package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"slackagent/pkg/codehost"
	"slackagent/pkg/config"
	"slackagent/pkg/logx"
)

// newMCPCmd serves the configured code host as MCP tools on stdio, so another
// instance can use it through codehost.backend mcp.
func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the configured code host as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			switch cfg.CodeHost.Backend {
			case config.CodeHostNone:
				return errors.New("codehost.backend is none, nothing to serve")
			case config.CodeHostMCP:
				return errors.New("codehost.backend mcp would proxy to itself; use gh or git")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := &app{cfg: cfg, logger: logx.NewLogger("mcp")}
			defer a.close(context.Background())
			host, err := a.codeHost(ctx, cfg.CodeHost)
			if err != nil {
				return err
			}
			if err := codehost.NewServer(host).Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}
}
