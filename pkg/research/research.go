// Package research answers code questions from a code host: it searches for
// terms taken from the query, reads the first hit per term, runs static
// heuristics over it, and optionally has an LLM summarize the findings.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"slackagent/pkg/agent/llm"
	llmmetrics "slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/codehost"
	"slackagent/pkg/logx"
)

// Unavailable prefixes every reply produced without a working code host.
const Unavailable = "コード調査は利用できません"

// SummaryHeading starts the LLM summary paragraph.
const SummaryHeading = "問題分析のまとめ:"

const summaryPrompt = `あなたはコードレビュー担当のエンジニアです。
取得したリポジトリ情報を分析し、技術的な問題点と必要な対応を日本語で簡潔にまとめてください。
対応手順は "- " で始まる箇条書きにしてください。`

var issueMarkers = []string{"問題", "issue", "バグ"}

// Option configures a Researcher.
type Option func(*Researcher)

// WithLLM enables LLM term extraction and summaries.
func WithLLM(client llm.LLMClient) Option {
	return func(r *Researcher) { r.llm = client }
}

// WithMaxFiles bounds search hits per term and files read from the query.
func WithMaxFiles(n int) Option {
	return func(r *Researcher) {
		if n > 0 {
			r.maxFiles = n
		}
	}
}

// Researcher implements workflow.Researcher.
type Researcher struct {
	host     codehost.Host
	llm      llm.LLMClient
	maxFiles int
	logger   *logx.Logger
}

// New returns a researcher reading from host. A nil host yields an
// "unavailable" answer for every query.
func New(host codehost.Host, opts ...Option) *Researcher {
	r := &Researcher{host: host, maxFiles: 5, logger: logx.NewLogger("research")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// findings collects report sections and host failures.
type findings struct {
	sections []string
	analyzed map[string]bool // by path
	failures []error
}

func (f *findings) add(format string, args ...any) {
	f.sections = append(f.sections, fmt.Sprintf(format, args...))
}

func (f *findings) fail(err error) {
	f.failures = append(f.failures, err)
}

// Research never fails; host problems are described in the returned text.
func (r *Researcher) Research(ctx context.Context, query string) string {
	if r.host == nil {
		return Unavailable + " (コードホストが設定されていません)"
	}

	f := &findings{analyzed: map[string]bool{}}
	terms := ExtractTerms(ctx, r.llm, query)
	logx.Debug(ctx, "research", "terms %v on %s", terms, r.host.Name())

	r.readReferencedFiles(ctx, query, terms[0], f)
	for _, term := range terms {
		r.searchTerm(ctx, term, f)
	}
	if mentionsIssues(query) {
		r.listIssues(ctx, f)
	}

	if len(f.sections) == 0 {
		if len(f.failures) > 0 {
			r.logger.Warn("⚠️ Code host %s failed: %v", r.host.Name(), errors.Join(f.failures...))
			return fmt.Sprintf("%s (%s: %v)", Unavailable, r.host.Name(), f.failures[0])
		}
		return fmt.Sprintf("「%s」に一致するコードは見つかりませんでした", strings.Join(terms, "」「"))
	}

	raw := strings.Join(f.sections, "\n\n")
	if summary := r.summarize(ctx, query, raw); summary != "" {
		return SummaryHeading + "\n" + summary + "\n\n" + raw
	}
	return raw
}

func (r *Researcher) readReferencedFiles(ctx context.Context, query, term string, f *findings) {
	refs := ExtractFileRefs(query)
	if len(refs) > r.maxFiles {
		refs = refs[:r.maxFiles]
	}
	for _, ref := range refs {
		r.analyzeFile(ctx, ref.Repo, ref.Path, term, f)
	}
}

func (r *Researcher) searchTerm(ctx context.Context, term string, f *findings) {
	matches, err := r.host.SearchCode(ctx, term, r.maxFiles)
	if err != nil {
		f.fail(fmt.Errorf("search %q: %w", term, err))
		return
	}
	if len(matches) == 0 {
		return
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("- %s:%s", m.Repo, m.Path))
	}
	f.add("「%s」のコード検索結果:\n%s", term, strings.Join(lines, "\n"))

	for _, m := range matches {
		if !f.analyzed[m.Path] {
			r.analyzeFile(ctx, m.Repo, m.Path, term, f)
			return
		}
	}
}

func (r *Researcher) analyzeFile(ctx context.Context, repo, path, term string, f *findings) {
	f.analyzed[path] = true
	content, err := r.host.FetchContent(ctx, repo, path)
	if err != nil {
		if !errors.Is(err, codehost.ErrNotFound) {
			f.fail(fmt.Errorf("fetch %s: %w", path, err))
		}
		return
	}
	f.add("ファイル「%s」の問題分析:\n%s", path, Analyze(content, term))
}

func (r *Researcher) listIssues(ctx context.Context, f *findings) {
	issues, err := r.host.ListIssues(ctx, 10)
	if err != nil {
		if !errors.Is(err, codehost.ErrUnsupported) {
			f.fail(fmt.Errorf("list issues: %w", err))
		}
		return
	}
	if len(issues) == 0 {
		return
	}
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, fmt.Sprintf("- #%d %s (%s)", is.Number, is.Title, is.URL))
	}
	f.add("未解決の問題一覧:\n%s", strings.Join(lines, "\n"))
}

func (r *Researcher) summarize(ctx context.Context, query, raw string) string {
	if r.llm == nil {
		return ""
	}
	resp, err := r.llm.Complete(llmmetrics.WithOperation(ctx, "research_summary"),
		llm.Prompt(summaryPrompt, fmt.Sprintf("ユーザークエリ: %s\n\n取得情報:\n%s", query, raw), llm.TemperatureDefault))
	if err != nil {
		r.logger.Warn("⚠️ Research summary failed, returning raw findings: %v", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

func mentionsIssues(query string) bool {
	lower := strings.ToLower(query)
	for _, m := range issueMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
