package research

import (
	"fmt"
	"strings"
)

// NoIssuesFound is returned by Analyze when no heuristic fires.
const NoIssuesFound = "明らかな問題は検出されませんでした"

var (
	secretTerms    = []string{"password", "secret", "key", "token", "パスワード", "秘密"}
	hardcodedTerms = []string{"hardcoded", "ハードコード"}
)

// termContextLines bounds how many matching lines are quoted per file.
const termContextLines = 3

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Analyze runs the static heuristics over one file and returns a "- " bullet
// list of findings, or NoIssuesFound.
func Analyze(content, term string) string {
	lower := strings.ToLower(content)
	var findings []string

	if strings.Contains(content, "TODO") {
		findings = append(findings, "未完了の TODO コメントがあります")
	}
	if strings.Contains(content, "FIXME") {
		findings = append(findings, "修正が必要な FIXME コメントがあります")
	}
	if strings.Contains(lower, "bug") {
		findings = append(findings, "バグに関する記述があります")
	}
	if containsAny(lower, secretTerms) && containsAny(lower, hardcodedTerms) {
		findings = append(findings, "ハードコードされた機密情報が含まれている可能性があります")
	}
	if strings.Contains(lower, "try") && !strings.Contains(lower, "except") && !strings.Contains(lower, "catch") {
		findings = append(findings, "エラーハンドリングが不完全な可能性があります")
	}
	if lines := linesContaining(content, term, termContextLines); len(lines) > 0 {
		findings = append(findings, fmt.Sprintf("検索語「%s」を含む箇所:\n%s", term, strings.Join(lines, "\n")))
	}
	if strings.Count(lower, "for") >= 2 {
		findings = append(findings, "ネストされたループがあり、パフォーマンスに影響する可能性があります")
	}

	if len(findings) == 0 {
		return NoIssuesFound
	}
	return "- " + strings.Join(findings, "\n- ")
}

// linesContaining returns up to limit trimmed lines containing term,
// case-insensitively.
func linesContaining(content, term string, limit int) []string {
	if term == "" {
		return nil
	}
	needle := strings.ToLower(term)
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(line), needle) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}
