// Command slackagent answers Slack mentions by routing each question through
// data lookup, code research and task creation.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slackagent/pkg/config"
	"slackagent/pkg/logx"
	"slackagent/pkg/version"
)

type rootFlags struct {
	configPath string
	debug      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "slackagent",
		Short:         "Slack assistant that routes questions to data, code and task workflows",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flags.debug != "" {
				var domains []string
				if flags.debug != "all" {
					domains = strings.Split(flags.debug, ",")
				}
				logx.SetDebug(true, domains...)
			}
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&flags.debug, "debug", "", `enable debug logs: "all" or comma-separated domains`)

	root.AddCommand(
		newServeCmd(flags),
		newWorkerCmd(flags),
		newAskCmd(flags),
		newMigrateCmd(flags),
		newRunsCmd(flags),
		newMCPCmd(flags),
		newStatsCmd(flags),
		newSecretsCmd(flags),
		newVersionCmd(),
	)
	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "slackagent %s\n", version.Version)
			fmt.Fprintf(out, "  commit: %s\n", version.Commit)
			fmt.Fprintf(out, "  built:  %s\n", version.Date)
		},
	}
}
