package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"slackagent/pkg/config"
	"slackagent/pkg/httpapi"
	"slackagent/pkg/queue"
	"slackagent/pkg/slackbot"
	"slackagent/pkg/tracing"
	"slackagent/pkg/version"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Slack listener and (optionally) queue workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, true)
		},
	}
}

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued mentions without serving HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if !cfg.Queue.Enabled {
				return errors.New("worker needs queue.enabled")
			}
			if cfg.Confirm.Mode == config.ConfirmSlack {
				return errors.New("confirm.mode slack needs the Slack listener; run serve instead")
			}
			return serve(cmd.Context(), cfg, false)
		},
	}
}

func queueConfig(cfg config.QueueConfig) queue.Config {
	return queue.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Stream:   cfg.Stream,
		Group:    cfg.Group,
		Consumer: cfg.Consumer,
		Workers:  cfg.Workers,
	}
}

// serve runs until SIGINT/SIGTERM. With withHTTP false only the queue
// consumer runs. Intake stops first, then in-flight runs get
// workflow.shutdown_grace to finish.
func serve(parent context.Context, cfg *config.Config, withHTTP bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version.Version, nil)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	a.logger.Info("🚀 slackagent %s", version.String())

	var (
		intake httpapi.Intake = a.service
		q      *queue.Queue
	)
	if cfg.Queue.Enabled {
		q = queue.New(queueConfig(cfg.Queue))
		if err := q.Ping(ctx); err != nil {
			a.close(context.Background())
			_ = shutdownTracing(context.Background())
			return err
		}
		intake = q
	}

	g, gctx := errgroup.WithContext(ctx)
	if withHTTP {
		server := httpapi.New(httpapi.Config{
			Addr:              cfg.HTTP.Addr,
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
			ServiceName:       cfg.Tracing.ServiceName,
		}, intake, a.service, a.registry)
		g.Go(func() error { return server.Run(gctx) })

		if a.slack != nil {
			listener := slackbot.NewListener(a.slack, intake, a.confirmer)
			g.Go(func() error { return listener.Run(gctx) })
		} else {
			a.logger.Info("Slack tokens not configured, socket mode disabled")
		}
	}
	if q != nil {
		g.Go(func() error { return q.Consume(gctx, a.service.Consume) })
	}

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("❌ %v", runErr)
	}
	a.logger.Info("🛑 Shutting down, draining in-flight requests (grace %s)", cfg.Workflow.ShutdownGrace)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Workflow.ShutdownGrace)
	defer cancel()
	if err := a.service.Drain(drainCtx); err != nil {
		a.logger.Warn("⚠️ %v", err)
	}
	a.close(drainCtx)
	if q != nil {
		if err := q.Close(); err != nil {
			a.logger.Warn("⚠️ Close queue: %v", err)
		}
	}
	if err := shutdownTracing(drainCtx); err != nil {
		a.logger.Warn("⚠️ Flush traces: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("serve: %w", runErr)
	}
	return nil
}
