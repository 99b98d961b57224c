package research_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/internal/mocks"
	"slackagent/pkg/codehost"
	"slackagent/pkg/research"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		content string
		term    string
		want    []string
		none    bool
	}{
		{name: "clean file", content: "package main\n\nfunc main() {}\n", term: "zzz", none: true},
		{name: "todo and fixme", content: "// TODO: later\n// FIXME now\n", term: "zzz", want: []string{"TODO", "FIXME"}},
		{name: "bug mention", content: "// this is a Bug\n", term: "zzz", want: []string{"バグ"}},
		{name: "hardcoded secret", content: "password = 'x' # hardcoded\n", term: "zzz", want: []string{"機密情報"}},
		{name: "secret without hardcoded marker", content: "token := os.Getenv(\"T\")\n", term: "zzz", none: true},
		{name: "try without handler", content: "try {\n  run()\n} finally {}\n", term: "zzz", want: []string{"エラーハンドリング"}},
		{name: "try with catch", content: "try { run() } catch (e) {}\n", term: "zzz", none: true},
		{name: "nested loops", content: "for a in xs:\n    for b in ys:\n        pass\n", term: "zzz", want: []string{"ネストされたループ"}},
		{name: "term lines capped at three", content: "redirect 1\nredirect 2\nRedirect 3\nredirect 4\n", term: "redirect",
			want: []string{"検索語「redirect」を含む箇所:\nredirect 1\nredirect 2\nRedirect 3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := research.Analyze(tt.content, tt.term)
			if tt.none {
				assert.Equal(t, research.NoIssuesFound, got)
				return
			}
			assert.True(t, strings.HasPrefix(got, "- "), got)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			assert.NotContains(t, got, "redirect 4")
		})
	}
}

func TestExtractTerms(t *testing.T) {
	ctx := context.Background()

	t.Run("quoted phrases win", func(t *testing.T) {
		llm := mocks.NewReplyingLLMClient("ignored")
		terms := research.ExtractTerms(ctx, llm, `why does "auth redirect" fail in 「ログイン画面」?`)
		assert.Equal(t, []string{"auth redirect", "ログイン画面"}, terms)
		assert.Zero(t, llm.CallCount())
	})

	t.Run("llm terms filtered", func(t *testing.T) {
		llm := mocks.NewReplyingLLMClient("bug, redirect, ab, Error, login, session, cookie")
		terms := research.ExtractTerms(ctx, llm, "login redirect is broken")
		assert.Equal(t, []string{"redirect", "login", "session"}, terms)
	})

	t.Run("llm failure falls back to words", func(t *testing.T) {
		llm := mocks.NewFailingLLMClient(errors.New("down"))
		terms := research.ExtractTerms(ctx, llm, "login redirect is broken after auth")
		assert.Equal(t, []string{"login", "redirect", "broken"}, terms)
	})

	t.Run("nothing usable", func(t *testing.T) {
		terms := research.ExtractTerms(ctx, nil, "a bug is an error")
		assert.Equal(t, research.DefaultTerms, terms)
	})
}

func TestExtractFileRefs(t *testing.T) {
	refs := research.ExtractFileRefs("look at acme/web:src/app.ts and auth/login.go, also auth/login.go again")
	assert.Equal(t, []research.FileRef{
		{Repo: "acme/web", Path: "src/app.ts"},
		{Path: "auth/login.go"},
	}, refs)

	assert.Empty(t, research.ExtractFileRefs("nothing here"))
}

func TestResearchWithoutHost(t *testing.T) {
	got := research.New(nil).Research(context.Background(), "anything")
	assert.True(t, strings.HasPrefix(got, research.Unavailable))
}

func TestResearchFindsAndAnalyzes(t *testing.T) {
	host := mocks.NewMockCodeHost(map[string]string{
		"auth/login.go":   "package auth\n// TODO: redirect loops after login\n",
		"auth/session.go": "package auth\n",
		"web/redirect.js": "try { redirect() } finally {}\n",
	})
	host.Issues = []codehost.Issue{{Number: 12, Title: "Redirect loop", URL: "https://example.com/12"}}

	got := research.New(host).Research(context.Background(), `"redirect" の問題を調べて`)

	assert.Contains(t, got, "「redirect」のコード検索結果:\n- acme/api:auth/login.go\n- acme/api:web/redirect.js")
	assert.Contains(t, got, "ファイル「auth/login.go」の問題分析:\n- 未完了の TODO")
	assert.Contains(t, got, "未解決の問題一覧:\n- #12 Redirect loop")
	assert.NotContains(t, got, research.SummaryHeading)
	assert.Equal(t, []string{"acme/api:auth/login.go"}, host.FetchCalls)
}

func TestResearchReadsReferencedFilesFirst(t *testing.T) {
	host := mocks.NewMockCodeHost(map[string]string{
		"billing/invoice.py": "# FIXME rounding\n",
	})

	got := research.New(host).Research(context.Background(), "check billing/invoice.py rounding")
	require.Contains(t, got, "ファイル「billing/invoice.py」の問題分析")
	assert.Equal(t, ":billing/invoice.py", host.FetchCalls[0])
	// the search hit for the same file is not analyzed twice
	assert.Equal(t, 1, host.FetchCount())
}

func TestResearchSummary(t *testing.T) {
	host := mocks.NewMockCodeHost(map[string]string{"auth/login.go": "// FIXME redirect\n"})
	llm := mocks.NewReplyingLLMClient("リダイレクト処理の修正が必要です\n- ループ条件を修正する")

	got := research.New(host, research.WithLLM(llm)).Research(context.Background(), `"redirect"`)
	assert.True(t, strings.HasPrefix(got, research.SummaryHeading+"\nリダイレクト処理の修正が必要です"), got)
	assert.Contains(t, got, "ファイル「auth/login.go」の問題分析")
	assert.Contains(t, llm.LastUserMessage(), "取得情報:")
}

func TestResearchSummaryFailureKeepsRawFindings(t *testing.T) {
	host := mocks.NewMockCodeHost(map[string]string{"auth/login.go": "// FIXME redirect\n"})
	llm := mocks.NewFailingLLMClient(errors.New("rate limited"))

	got := research.New(host, research.WithLLM(llm)).Research(context.Background(), `"redirect"`)
	assert.True(t, strings.HasPrefix(got, "「redirect」のコード検索結果"), got)
}

func TestResearchHostFailureNeverFails(t *testing.T) {
	host := mocks.NewMockCodeHost(nil)
	host.Err = errors.New("connection refused")

	got := research.New(host).Research(context.Background(), "redirect の問題")
	assert.True(t, strings.HasPrefix(got, research.Unavailable), got)
	assert.Contains(t, got, "connection refused")
}

func TestResearchNoMatches(t *testing.T) {
	host := mocks.NewMockCodeHost(map[string]string{"main.go": "package main\n"})

	got := research.New(host).Research(context.Background(), `"websocket"`)
	assert.Equal(t, "「websocket」に一致するコードは見つかりませんでした", got)
}
