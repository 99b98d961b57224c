// Package config loads the service configuration from YAML with environment
// substitution, environment overrides, defaults and validation.
package config

import (
	"time"
)

// Provider names accepted in llm.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
	ProviderNone      = "none"
)

// Classifier modes.
const (
	ClassifierHeuristic = "heuristic"
	ClassifierLLM       = "llm"
	ClassifierChain     = "chain"
)

// Edge orders for the workflow table.
const (
	EdgeOrderDataFirst = "data_first"
	EdgeOrderCodeFirst = "code_first"
)

// Confirmation modes.
const (
	ConfirmAuto     = "auto"
	ConfirmTerminal = "terminal"
	ConfirmSlack    = "slack"
	ConfirmReject   = "reject"
)

// Code host backends.
const (
	CodeHostNone = "none"
	CodeHostGH   = "gh"
	CodeHostGit  = "git"
	CodeHostMCP  = "mcp"
)

// Task store backends.
const (
	TasksNone   = "none"
	TasksNotion = "notion"
	TasksGitHub = "github"
	TasksSQLite = "sqlite"
)

// Config is the root configuration.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Data        DataConfig        `yaml:"data"`
	Confirm     ConfirmConfig     `yaml:"confirm"`
	CodeHost    CodeHostConfig    `yaml:"codehost"`
	Tasks       TasksConfig       `yaml:"tasks"`
	Slack       SlackConfig       `yaml:"slack"`
	Queue       QueueConfig       `yaml:"queue"`
	HTTP        HTTPConfig        `yaml:"http"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	SecretsFile string            `yaml:"secrets_file"`
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Host        string        `yaml:"host"` // Ollama only
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	Retry       RetryConfig   `yaml:"retry"`
	RateLimit   LLMRateLimit  `yaml:"rate_limit"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type LLMRateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	MaxConcurrency    int `yaml:"max_concurrency"`
}

type ClassifierConfig struct {
	Mode string `yaml:"mode"`
}

// WorkflowConfig tunes the orchestrator.
type WorkflowConfig struct {
	EdgeOrder     string        `yaml:"edge_order"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	ReplyLimit    int           `yaml:"reply_limit"` // runes
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DataConfig points at the database queried on behalf of users.
type DataConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	AllowWrites  bool          `yaml:"allow_writes"`
	MaxRows      int           `yaml:"max_rows"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type ConfirmConfig struct {
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

// CodeHostConfig selects where code research reads from.
type CodeHostConfig struct {
	Backend string `yaml:"backend"`
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Path    string `yaml:"path"` // local clone for the git backend
	// Remote is a GitHub clone URL; owner and repo are parsed from it when
	// they are not set.
	Remote     string        `yaml:"remote"`
	Timeout    time.Duration `yaml:"timeout"` // per gh invocation
	Include    []string      `yaml:"include"`
	Exclude    []string      `yaml:"exclude"`
	CacheSize  int           `yaml:"cache_size"`
	MaxFiles   int           `yaml:"max_files"`
	MCPCommand []string      `yaml:"mcp_command"`
}

// GitHubRepoKnown reports whether the GitHub repository can be resolved
// from owner/repo, the remote URL or the origin of the local clone.
func (c CodeHostConfig) GitHubRepoKnown() bool {
	return (c.Owner != "" && c.Repo != "") || c.Remote != "" || c.Path != ""
}

// TasksConfig selects where follow-up tasks are written.
type TasksConfig struct {
	Backend          string   `yaml:"backend"`
	NotionToken      string   `yaml:"notion_token"`
	NotionDatabaseID string   `yaml:"notion_database_id"`
	NotionBaseURL    string   `yaml:"notion_base_url"`
	GitHubLabels     []string `yaml:"github_labels"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// Enabled reports whether socket mode can be started.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && s.AppToken != ""
}

// QueueConfig configures Redis Streams intake.
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
	Workers  int    `yaml:"workers"`
}

type HTTPConfig struct {
	Addr              string  `yaml:"addr"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type PersistenceConfig struct {
	Path string `yaml:"path"`
}

type TracingConfig struct {
	Exporter    string `yaml:"exporter"` // otlp | stdout | none
	Endpoint    string `yaml:"endpoint"` // otlp gRPC endpoint
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PrometheusURL string `yaml:"prometheus_url"`
}
