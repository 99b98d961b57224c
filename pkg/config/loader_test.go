package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, ClassifierHeuristic, cfg.Classifier.Mode)
	assert.Equal(t, EdgeOrderDataFirst, cfg.Workflow.EdgeOrder)
	assert.Equal(t, 2000, cfg.Workflow.ReplyLimit)
	assert.Equal(t, ConfirmAuto, cfg.Confirm.Mode)
	assert.Equal(t, 100, cfg.Data.MaxRows)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.CodeHost.Timeout)
}

func TestGHBackendAcceptsRemote(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "codehost:\n  backend: gh\n  remote: git@github.com:acme/api.git\n  timeout: 5s\n"))
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:acme/api.git", cfg.CodeHost.Remote)
	assert.Equal(t, 5*time.Second, cfg.CodeHost.Timeout)
}

func TestLoadConfigYAMLWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test")
	path := writeConfig(t, `
llm:
  provider: anthropic
  api_key: ${TEST_ANTHROPIC_KEY}
  timeout: 15s
workflow:
  edge_order: code_first
data:
  dsn: file:analytics.db
  allow_writes: false
codehost:
  backend: git
  path: /srv/repo
  include: ["**/*.go", "**/*.py"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ClassifierChain, cfg.Classifier.Mode)
	assert.Equal(t, EdgeOrderCodeFirst, cfg.Workflow.EdgeOrder)
	assert.Equal(t, []string{"**/*.go", "**/*.py"}, cfg.CodeHost.Include)
	assert.NotEmpty(t, cfg.LLM.Model)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLACKAGENT_HTTP_ADDR", ":9999")
	t.Setenv("SLACKAGENT_DATA_ALLOW_WRITES", "true")
	t.Setenv("SLACKAGENT_CONFIRM_TIMEOUT", "45s")
	t.Setenv("SLACKAGENT_LLM_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("SLACKAGENT_TASKS_GITHUB_LABELS", "bug, slack")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.True(t, cfg.Data.AllowWrites)
	assert.Equal(t, 45*time.Second, cfg.Confirm.Timeout)
	assert.Equal(t, 7, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, []string{"bug", "slack"}, cfg.Tasks.GitHubLabels)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown provider", "llm:\n  provider: acme\n", "llm.provider"},
		{"missing api key", "llm:\n  provider: openai\n", "llm.api_key"},
		{"slack confirm without tokens", "confirm:\n  mode: slack\n", "confirm.mode slack"},
		{"gh without repo", "codehost:\n  backend: gh\n", "codehost.owner"},
		{"bad edge order", "workflow:\n  edge_order: sideways\n", "workflow.edge_order"},
		{"llm classifier without provider", "classifier:\n  mode: llm\n", "requires an llm.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestSecretsRoundTripFillsConfig(t *testing.T) {
	secretsPath := filepath.Join(t.TempDir(), "secrets.enc")
	require.NoError(t, SetSecret(secretsPath, "pw", SecretLLMAPIKey, "from-secrets"))
	require.NoError(t, SetSecret(secretsPath, "pw", SecretSlackBotToken, "xoxb-1"))

	info, err := os.Stat(secretsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = DecryptSecretsFile(secretsPath, "wrong")
	require.Error(t, err)

	t.Setenv(SecretsPasswordEnv, "pw")
	path := writeConfig(t, "secrets_file: "+secretsPath+"\nllm:\n  provider: openai\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-secrets", cfg.LLM.APIKey)
	assert.Equal(t, "xoxb-1", cfg.Slack.BotToken)
}

func TestSecretsFileWithoutPassword(t *testing.T) {
	t.Setenv(SecretsPasswordEnv, "")
	_, err := LoadConfig(writeConfig(t, "secrets_file: /nonexistent\n"))
	require.ErrorIs(t, err, ErrSecretsPasswordMissing)
}
