package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slackagent/pkg/config"
	"slackagent/pkg/mention"
	"slackagent/pkg/workflow"
)

// SourceCLI marks tasks entered with the ask command.
const SourceCLI = "cli"

type askFlags struct {
	user    string
	channel string
	verbose bool
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	af := &askFlags{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one question locally and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return ask(ctx, cfg, strings.Join(args, " "), af, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&af.user, "user", "cli-user", "user id recorded on the request")
	cmd.Flags().StringVar(&af.channel, "channel", "cli", "channel id recorded on the request")
	cmd.Flags().BoolVarP(&af.verbose, "verbose", "v", false, "print the route and every step message")
	return cmd
}

// slackTimestamp renders t the way Slack stamps messages.
func slackTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func ask(ctx context.Context, cfg *config.Config, question string, af *askFlags, out io.Writer) error {
	opts := appOptions{noSlack: true}
	// Button confirmations need the Slack listener; prompt on the terminal instead.
	if cfg.Confirm.Mode == config.ConfirmSlack {
		opts.confirmMode = config.ConfirmTerminal
	}
	a, err := buildApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	task := mention.New(question, af.user, af.channel, slackTimestamp(time.Now()), "", SourceCLI)
	res, err := a.service.Direct(ctx, task)
	if err != nil {
		return err
	}
	snap := res.Snapshot

	if af.verbose {
		route := "-"
		if snap.Route != nil {
			route = snap.Route.Label()
		}
		fmt.Fprintf(out, "route: %s  path: %s  (%s)\n", route, formatPath(snap.Path), res.Duration.Round(time.Millisecond))
		for _, m := range snap.Transcript {
			fmt.Fprintf(out, "--- %s\n%s\n", m.StepName, m.Content)
		}
		if snap.Error != nil {
			fmt.Fprintf(out, "error: %s at %s: %s\n", snap.Error.Kind, snap.Error.Step, snap.Error.Message)
		}
		fmt.Fprintln(out, "=== reply")
	}
	fmt.Fprintln(out, snap.FinalResponse)
	return nil
}

func formatPath(path []workflow.Node) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = string(n)
	}
	return strings.Join(parts, " → ")
}
