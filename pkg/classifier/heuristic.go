// Package classifier decides which capabilities a chat message needs.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"slackagent/pkg/workflow"
)

var (
	dataKeywords = []string{
		"how many", "how much", "count", "number of", "total", "average", "sum of",
		"signed up", "sign up", "signups", "revenue", "sales", "statistics", "stats",
		"sql", "database", "query the",
		"何件", "何人", "件数", "人数", "集計", "売上", "統計", "データ", "クエリ", "平均", "合計", "登録数",
	}
	codeKeywords = []string{
		"code", "bug", "broken", "error", "exception", "crash", "stack trace", "repo",
		"repository", "function", "github", "pull request", "regression", "not working",
		"fails", "failing", "implementation", "review",
		"コード", "バグ", "エラー", "不具合", "実装", "リポジトリ", "例外", "動かない", "壊れ",
	}
	taskKeywords = []string{
		"task", "ticket", "todo", "follow up", "follow-up", "notion", "create an issue",
		"タスク", "チケット", "起票", "対応して", "登録して",
	}
	// Defect reports imply a fix, so they also ask for a follow-up task.
	defectKeywords = []string{
		"broken", "bug", "crash", "fails", "failing", "not working", "regression",
		"バグ", "不具合", "動かない", "壊れ",
	}

	fileRefPattern = regexp.MustCompile(`[A-Za-z0-9_\-/.]+\.(py|js|ts|go|java|rb)\b`)
)

// matcher finds keywords in lower-cased text. ASCII keywords must sit on
// word boundaries; other keywords match as substrings.
type matcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

func newMatcher(keywords []string) matcher {
	m := matcher{keywords: keywords, patterns: make([]*regexp.Regexp, len(keywords))}
	for i, kw := range keywords {
		if isASCII(kw) {
			m.patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		}
	}
	return m
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func (m matcher) find(lower string) []string {
	var hits []string
	for i, kw := range m.keywords {
		if p := m.patterns[i]; p != nil {
			if p.MatchString(lower) {
				hits = append(hits, kw)
			}
			continue
		}
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// Heuristic routes on keyword matches. It needs no LLM and never fails.
type Heuristic struct {
	data, code, task, defect matcher
}

// NewHeuristic builds the keyword classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{
		data:   newMatcher(dataKeywords),
		code:   newMatcher(codeKeywords),
		task:   newMatcher(taskKeywords),
		defect: newMatcher(defectKeywords),
	}
}

// Classify implements workflow.Classifier.
func (h *Heuristic) Classify(_ context.Context, query string) workflow.RouteDecision {
	lower := strings.ToLower(query)
	data := h.data.find(lower)
	code := h.code.find(lower)
	task := h.task.find(lower)
	defect := h.defect.find(lower)
	if ref := fileRefPattern.FindString(query); ref != "" {
		code = append(code, ref)
	}

	d := workflow.RouteDecision{
		NeedsDataLookup:   len(data) > 0,
		NeedsCodeReview:   len(code) > 0,
		NeedsTaskCreation: len(task) > 0 || (len(code) > 0 && len(defect) > 0),
	}
	var reasons []string
	// A task is described from a code analysis.
	if d.NeedsTaskCreation && !d.NeedsCodeReview && !d.NeedsDataLookup {
		d.NeedsCodeReview = true
		reasons = append(reasons, "code review added for the task")
	}
	if len(data) > 0 {
		reasons = append(reasons, fmt.Sprintf("data keywords %q", data))
	}
	if len(code) > 0 {
		reasons = append(reasons, fmt.Sprintf("code keywords %q", code))
	}
	if len(task) > 0 {
		reasons = append(reasons, fmt.Sprintf("task keywords %q", task))
	}
	if len(reasons) == 0 {
		d.Reason = "no data, code or task keywords"
	} else {
		d.Reason = "matched " + strings.Join(reasons, "; ")
	}
	return d
}

var _ workflow.Classifier = (*Heuristic)(nil)
