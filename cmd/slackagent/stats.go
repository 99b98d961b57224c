package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"slackagent/pkg/metrics"
)

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show request, failure and token statistics from Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cfg.Metrics.PrometheusURL == "" {
				return errors.New("metrics.prometheus_url is not set")
			}
			qs, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
			if err != nil {
				return err
			}
			stats, err := qs.GetStats(cmd.Context(), window)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📊 Last %s\n\nRequests by route:\n", window)
			for _, k := range sortedKeys(stats.RequestsByRoute) {
				fmt.Fprintf(out, "  %-20s %.0f\n", k, stats.RequestsByRoute[k])
			}
			fmt.Fprintln(out, "\nStep failures by kind:")
			for _, k := range sortedKeys(stats.FailuresByKind) {
				fmt.Fprintf(out, "  %-20s %.0f\n", k, stats.FailuresByKind[k])
			}
			fmt.Fprintln(out, "\nLLM tokens:")
			for _, k := range sortedKeys(stats.Tokens) {
				u := stats.Tokens[k]
				fmt.Fprintf(out, "  %-20s prompt=%d completion=%d total=%d\n", u.Model, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&window, "window", "w", time.Hour, "time window to aggregate over")
	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
