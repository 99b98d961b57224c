package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"slackagent/pkg/logx"
)

// EnvPrefix prefixes every environment override, e.g. SLACKAGENT_HTTP_ADDR.
const EnvPrefix = "SLACKAGENT_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig reads path (optional), substitutes ${VAR} placeholders, applies
// environment overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	logger := logx.NewLogger("config")
	var cfg Config

	if path != "" {
		logger.Info("📝 Loading config from %s", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.SecretsFile != "" {
		if err := applySecretsFile(&cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Info("✅ Config loaded (llm=%s classifier=%s codehost=%s tasks=%s confirm=%s)",
		cfg.LLM.Provider, cfg.Classifier.Mode, cfg.CodeHost.Backend, cfg.Tasks.Backend, cfg.Confirm.Mode)
	return &cfg, nil
}

// Parse substitutes ${VAR} placeholders and decodes YAML into cfg. Unknown
// variables are left untouched.
func Parse(data []byte, cfg *Config) error {
	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem(), EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		envKey := prefix + strings.ToUpper(strings.Split(tag, ",")[0])

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			applyEnvOverridesRecursive(field, envKey+"_")
			continue
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			setFieldFromEnv(field, envValue)
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(envValue); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int:
		if val, err := strconv.Atoi(envValue); err == nil {
			field.SetInt(int64(val))
		}
	case reflect.Float64:
		if val, err := strconv.ParseFloat(envValue, 64); err == nil {
			field.SetFloat(val)
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(val)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(envValue, ",")
			out := reflect.MakeSlice(field.Type(), 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = reflect.Append(out, reflect.ValueOf(p))
				}
			}
			field.Set(out)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderNone
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel(cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2048
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.Retry.MaxAttempts == 0 {
		cfg.LLM.Retry.MaxAttempts = 3
	}
	if cfg.LLM.Retry.InitialDelay == 0 {
		cfg.LLM.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.LLM.Retry.MaxDelay == 0 {
		cfg.LLM.Retry.MaxDelay = 10 * time.Second
	}
	if cfg.LLM.Provider == ProviderOllama && cfg.LLM.Host == "" {
		cfg.LLM.Host = "http://localhost:11434"
	}

	if cfg.Classifier.Mode == "" {
		if cfg.LLM.Provider == ProviderNone {
			cfg.Classifier.Mode = ClassifierHeuristic
		} else {
			cfg.Classifier.Mode = ClassifierChain
		}
	}

	if cfg.Workflow.EdgeOrder == "" {
		cfg.Workflow.EdgeOrder = EdgeOrderDataFirst
	}
	if cfg.Workflow.StepTimeout == 0 {
		cfg.Workflow.StepTimeout = 90 * time.Second
	}
	if cfg.Workflow.ReplyLimit == 0 {
		cfg.Workflow.ReplyLimit = 2000
	}
	if cfg.Workflow.ShutdownGrace == 0 {
		cfg.Workflow.ShutdownGrace = 30 * time.Second
	}

	if cfg.Data.Driver == "" {
		cfg.Data.Driver = "sqlite"
	}
	if cfg.Data.MaxRows == 0 {
		cfg.Data.MaxRows = 100
	}
	if cfg.Data.MaxOpenConns == 0 {
		cfg.Data.MaxOpenConns = 4
	}
	if cfg.Data.QueryTimeout == 0 {
		cfg.Data.QueryTimeout = 30 * time.Second
	}

	if cfg.Confirm.Mode == "" {
		cfg.Confirm.Mode = ConfirmAuto
	}
	if cfg.Confirm.Timeout == 0 {
		cfg.Confirm.Timeout = 5 * time.Minute
	}

	if cfg.CodeHost.Backend == "" {
		cfg.CodeHost.Backend = CodeHostNone
	}
	if cfg.CodeHost.CacheSize == 0 {
		cfg.CodeHost.CacheSize = 256
	}
	if cfg.CodeHost.MaxFiles == 0 {
		cfg.CodeHost.MaxFiles = 5
	}
	if cfg.CodeHost.Timeout == 0 {
		cfg.CodeHost.Timeout = 30 * time.Second
	}

	if cfg.Tasks.Backend == "" {
		cfg.Tasks.Backend = TasksNone
	}
	if cfg.Tasks.NotionBaseURL == "" {
		cfg.Tasks.NotionBaseURL = "https://api.notion.com"
	}

	if cfg.Queue.Addr == "" {
		cfg.Queue.Addr = "localhost:6379"
	}
	if cfg.Queue.Stream == "" {
		cfg.Queue.Stream = "slackagent:mentions"
	}
	if cfg.Queue.Group == "" {
		cfg.Queue.Group = "slackagent"
	}
	if cfg.Queue.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Queue.Consumer = "worker-" + host
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestsPerSecond == 0 {
		cfg.HTTP.RequestsPerSecond = 10
	}
	if cfg.HTTP.Burst == 0 {
		cfg.HTTP.Burst = 20
	}

	if cfg.Persistence.Path == "" {
		cfg.Persistence.Path = "slackagent.db"
	}

	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
	if cfg.Tracing.Exporter == "otlp" && cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "slackagent"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-sonnet-4-5"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1"
	case ProviderGoogle:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

func validateConfig(cfg *Config) error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(oneOf("llm.provider", cfg.LLM.Provider, ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderGoogle, ProviderNone))
	add(oneOf("classifier.mode", cfg.Classifier.Mode, ClassifierHeuristic, ClassifierLLM, ClassifierChain))
	add(oneOf("workflow.edge_order", cfg.Workflow.EdgeOrder, EdgeOrderDataFirst, EdgeOrderCodeFirst))
	add(oneOf("confirm.mode", cfg.Confirm.Mode, ConfirmAuto, ConfirmTerminal, ConfirmSlack, ConfirmReject))
	add(oneOf("codehost.backend", cfg.CodeHost.Backend, CodeHostNone, CodeHostGH, CodeHostGit, CodeHostMCP))
	add(oneOf("tasks.backend", cfg.Tasks.Backend, TasksNone, TasksNotion, TasksGitHub, TasksSQLite))
	add(oneOf("tracing.exporter", cfg.Tracing.Exporter, "otlp", "stdout", "none"))

	if cfg.LLM.Provider != ProviderNone && cfg.LLM.Provider != ProviderOllama && cfg.LLM.APIKey == "" {
		add(fmt.Errorf("llm.api_key is required for provider %s", cfg.LLM.Provider))
	}
	if cfg.Classifier.Mode == ClassifierLLM && cfg.LLM.Provider == ProviderNone {
		add(errors.New("classifier.mode llm requires an llm.provider"))
	}
	if cfg.Workflow.ReplyLimit < 200 {
		add(fmt.Errorf("workflow.reply_limit must be at least 200, got %d", cfg.Workflow.ReplyLimit))
	}
	if cfg.Confirm.Mode == ConfirmSlack && !cfg.Slack.Enabled() {
		add(errors.New("confirm.mode slack requires slack.bot_token and slack.app_token"))
	}
	if cfg.CodeHost.Backend == CodeHostGH && !cfg.CodeHost.GitHubRepoKnown() {
		add(errors.New("codehost.owner and codehost.repo (or codehost.remote or codehost.path) are required for the gh backend"))
	}
	if cfg.CodeHost.Backend == CodeHostGit && cfg.CodeHost.Path == "" {
		add(errors.New("codehost.path is required for the git backend"))
	}
	if cfg.CodeHost.Backend == CodeHostMCP && len(cfg.CodeHost.MCPCommand) == 0 {
		add(errors.New("codehost.mcp_command is required for the mcp backend"))
	}
	if cfg.Tasks.Backend == TasksNotion && (cfg.Tasks.NotionToken == "" || cfg.Tasks.NotionDatabaseID == "") {
		add(errors.New("tasks.notion_token and tasks.notion_database_id are required for the notion backend"))
	}
	if cfg.Tasks.Backend == TasksGitHub && !cfg.CodeHost.GitHubRepoKnown() {
		add(errors.New("codehost.owner and codehost.repo (or codehost.remote or codehost.path) are required for the github task backend"))
	}
	if cfg.Data.MaxRows < 1 {
		add(fmt.Errorf("data.max_rows must be positive, got %d", cfg.Data.MaxRows))
	}
	if cfg.Queue.Workers < 1 {
		add(fmt.Errorf("queue.workers must be positive, got %d", cfg.Queue.Workers))
	}

	return errors.Join(errs...)
}
