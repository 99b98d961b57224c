package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel"

	"slackagent/pkg/agent"
	"slackagent/pkg/agent/llm"
	"slackagent/pkg/assistant"
	"slackagent/pkg/classifier"
	"slackagent/pkg/codehost"
	"slackagent/pkg/config"
	"slackagent/pkg/dataquery"
	"slackagent/pkg/formatter"
	"slackagent/pkg/github"
	"slackagent/pkg/logx"
	"slackagent/pkg/metrics"
	"slackagent/pkg/persistence"
	"slackagent/pkg/research"
	"slackagent/pkg/slackbot"
	"slackagent/pkg/tasks"
	"slackagent/pkg/workflow"
)

// app holds every component of one process, wired from config.
type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	store     *persistence.Store
	writer    *persistence.Writer
	service   *assistant.Service
	slack     *slack.Client
	confirmer *slackbot.Confirmer
	logger    *logx.Logger
	gh        *github.Client

	closers []func() error
}

type appOptions struct {
	// confirmMode overrides confirm.mode, e.g. "terminal" for ask.
	confirmMode string
	// noSlack keeps the Slack client out even when tokens are configured.
	noSlack bool
}

func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, registry: prometheus.NewRegistry(), logger: logx.NewLogger("slackagent")}
	defer func() {
		if err != nil {
			a.close(context.Background())
			a = nil
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.store, err = persistence.Open(ctx, cfg.Persistence.Path)
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.Slack.Enabled() && !opts.noSlack {
		a.slack = slackbot.NewClient(cfg.Slack.BotToken, cfg.Slack.AppToken)
	}

	factory := agent.NewLLMClientFactory(cfg.LLM, a.registry)
	var client llm.LLMClient
	if factory.Enabled() {
		if client, err = factory.CreateClient(); err != nil {
			return a, fmt.Errorf("create LLM client: %w", err)
		}
	}

	observer := metrics.NewWorkflow(a.registry)
	wfOpts := []workflow.Option{
		workflow.WithEdgeOrder(workflow.EdgeOrder(cfg.Workflow.EdgeOrder)),
		workflow.WithStepTimeout(cfg.Workflow.StepTimeout),
		workflow.WithConfirmTimeout(cfg.Confirm.Timeout),
		workflow.WithObserver(observer),
		workflow.WithTracer(otel.Tracer("slackagent/workflow")),
	}
	if client != nil {
		wfOpts = append(wfOpts, workflow.WithResponder(classifier.NewResponder(client)))
	}

	dataOpts, err := a.dataPath(cfg, client, opts)
	if err != nil {
		return a, err
	}
	wfOpts = append(wfOpts, dataOpts...)

	host, err := a.codeHost(ctx, cfg.CodeHost)
	if err != nil {
		return a, err
	}
	researchOpts := []research.Option{research.WithMaxFiles(cfg.CodeHost.MaxFiles)}
	if client != nil {
		researchOpts = append(researchOpts, research.WithLLM(client))
	}
	wfOpts = append(wfOpts, workflow.WithResearcher(research.New(host, researchOpts...)))

	taskStore, err := a.taskStore(ctx, cfg)
	if err != nil {
		return a, err
	}
	if taskStore != nil {
		wfOpts = append(wfOpts, workflow.WithTaskCreator(tasks.NewCreator(taskStore)))
	}

	fmtOpts := []formatter.Option{formatter.WithCeiling(cfg.Workflow.ReplyLimit)}
	if client != nil {
		fmtOpts = append(fmtOpts, formatter.WithSummarizer(client))
	}

	orchestrator, err := workflow.New(newClassifier(cfg.Classifier.Mode, client), formatter.New(fmtOpts...), wfOpts...)
	if err != nil {
		return a, fmt.Errorf("build workflow: %w", err)
	}

	a.writer = persistence.NewWriter(a.store, 0)
	svcOpts := []assistant.Option{
		assistant.WithRunSink(a.writer),
		assistant.WithReplyObserver(observer),
	}
	if a.slack != nil {
		api := a.slack
		svcOpts = append(svcOpts,
			assistant.WithPoster(slackbot.NewPoster(api)),
			assistant.WithLinker(func(ctx context.Context, channelID, ts string) string {
				return slackbot.Permalink(ctx, api, channelID, ts)
			}),
		)
	}
	a.service = assistant.New(orchestrator, svcOpts...)
	return a, nil
}

func newClassifier(mode string, client llm.LLMClient) workflow.Classifier {
	if client == nil {
		return classifier.NewHeuristic()
	}
	switch mode {
	case config.ClassifierLLM:
		return classifier.NewLLM(client)
	case config.ClassifierChain:
		return classifier.NewChain(classifier.NewLLM(client), classifier.NewHeuristic())
	default:
		return classifier.NewHeuristic()
	}
}

func (a *app) dataPath(cfg *config.Config, client llm.LLMClient, opts appOptions) ([]workflow.Option, error) {
	mode := cfg.Confirm.Mode
	if opts.confirmMode != "" {
		mode = opts.confirmMode
	}

	var confirmer workflow.Confirmer
	switch mode {
	case config.ConfirmAuto:
		confirmer = dataquery.AutoApprover{}
	case config.ConfirmReject:
		confirmer = dataquery.StaticConfirmer{Status: workflow.ConfirmationRejected}
	case config.ConfirmTerminal:
		confirmer = dataquery.NewTerminalConfirmer()
	case config.ConfirmSlack:
		if a.slack == nil {
			return nil, errors.New("confirm.mode slack needs a Slack connection")
		}
		a.confirmer = slackbot.NewConfirmer(a.slack)
		confirmer = a.confirmer
	default:
		return nil, fmt.Errorf("unknown confirm mode %q", mode)
	}
	memo, err := dataquery.NewMemo(confirmer, 0)
	if err != nil {
		return nil, err
	}
	wfOpts := []workflow.Option{workflow.WithConfirmer(memo)}

	if cfg.Data.DSN == "" {
		a.logger.Warn("⚠️ data.dsn not set, data questions cannot be answered")
		return wfOpts, nil
	}
	store, err := dataquery.Open(cfg.Data)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	wfOpts = append(wfOpts, workflow.WithExecutor(store))
	if client != nil {
		wfOpts = append(wfOpts, workflow.WithSQLGenerator(dataquery.NewGenerator(client, store)))
	}
	return wfOpts, nil
}

func (a *app) codeHost(ctx context.Context, cfg config.CodeHostConfig) (codehost.Host, error) {
	var host codehost.Host
	switch cfg.Backend {
	case config.CodeHostGH:
		client, err := a.githubClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		host = codehost.NewGHHost(client)
	case config.CodeHostGit:
		name := cfg.Repo
		if cfg.Owner != "" {
			name = cfg.Owner + "/" + cfg.Repo
		}
		gitHost, err := codehost.OpenGitHost(ctx, cfg.Path, codehost.GitOptions{
			Name:      name,
			Include:   cfg.Include,
			Exclude:   cfg.Exclude,
			CacheSize: cfg.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		host = gitHost
	case config.CodeHostMCP:
		mcpHost, err := codehost.StartMCPCommand(ctx, cfg.MCPCommand)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mcpHost.Close)
		host = mcpHost
	default:
		return nil, nil
	}

	cached, err := codehost.NewCached(host, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	a.logger.Info("🔎 Code research backed by %s", host.Name())
	return cached, nil
}

func (a *app) taskStore(ctx context.Context, cfg *config.Config) (tasks.Store, error) {
	switch cfg.Tasks.Backend {
	case config.TasksNotion:
		return tasks.NewNotionStore(cfg.Tasks.NotionToken, cfg.Tasks.NotionDatabaseID, cfg.Tasks.NotionBaseURL), nil
	case config.TasksGitHub:
		client, err := a.githubClient(ctx, cfg.CodeHost)
		if err != nil {
			return nil, err
		}
		return tasks.NewGitHubIssueStore(client, cfg.Tasks.GitHubLabels), nil
	case config.TasksSQLite:
		return tasks.NewSQLiteStore(a.store.DB()), nil
	default:
		return nil, nil
	}
}

// githubClient builds the gh client shared by code research and the issue
// task store, and checks gh can reach the repository.
func (a *app) githubClient(ctx context.Context, cfg config.CodeHostConfig) (*github.Client, error) {
	if a.gh != nil {
		return a.gh, nil
	}
	client, err := newGitHubClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Preflight(ctx); err != nil {
		return nil, err
	}
	a.gh = client
	return client, nil
}

// newGitHubClient resolves the repository from owner/repo, then
// codehost.remote, then the origin of codehost.path.
func newGitHubClient(cfg config.CodeHostConfig) (*github.Client, error) {
	client := github.NewClient(cfg.Owner, cfg.Repo)
	if cfg.Owner == "" || cfg.Repo == "" {
		remote := cfg.Remote
		if remote == "" {
			if cfg.Path == "" {
				return nil, errors.New("no GitHub repository configured")
			}
			origin, err := codehost.OriginURL(cfg.Path)
			if err != nil {
				return nil, err
			}
			remote = origin
		}
		var err error
		if client, err = github.NewClientFromRemote(remote); err != nil {
			return nil, err
		}
	}
	if cfg.Timeout > 0 {
		client = client.WithTimeout(cfg.Timeout)
	}
	return client, nil
}

// close drains the run writer, then releases stores in reverse order.
func (a *app) close(ctx context.Context) {
	if a.writer != nil {
		if err := a.writer.Close(ctx); err != nil {
			a.logger.Warn("⚠️ Run history writer: %v", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("⚠️ Close: %v", err)
		}
	}
}
