package research

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"slackagent/pkg/agent/llm"
	llmmetrics "slackagent/pkg/agent/middleware/metrics"
)

const (
	maxTerms     = 3
	minTermRunes = 3
)

// DefaultTerms are searched when nothing usable is extracted from the query.
var DefaultTerms = []string{"error", "bug", "TODO"}

var (
	quotedPattern = regexp.MustCompile(`"([^"]+)"|「([^」]+)」`)

	// FilePattern matches source file references such as auth/login.go.
	FilePattern = regexp.MustCompile(`([a-zA-Z0-9_\-/\.]+\.(py|js|ts|go|java|rb))`)

	// RepoPattern matches an "owner/repo:" prefix.
	RepoPattern = regexp.MustCompile(`([a-zA-Z0-9_\-\.]+/[a-zA-Z0-9_\-\.]+):`)
)

var genericTerms = map[string]bool{
	"code": true, "github": true, "バグ": true, "エラー": true, "問題": true,
	"issue": true, "bug": true, "error": true, "problem": true,
}

var stopWords = map[string]bool{
	"the": true, "and": true, "after": true, "before": true, "with": true, "what": true,
	"how": true, "why": true, "this": true, "that": true, "for": true, "from": true,
	"please": true, "can": true, "you": true, "are": true, "was": true, "when": true,
}

const termsPrompt = `次のユーザークエリから、コード検索に使う重要なキーワードを最大3つ抽出してください。
キーワードのみをカンマ区切りで返してください。`

// quotedTerms returns "..." and 「...」 phrases in order.
func quotedTerms(query string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		phrase := m[1]
		if phrase == "" {
			phrase = m[2]
		}
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			out = append(out, phrase)
		}
	}
	return out
}

func splitWords(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
}

// filterTerms drops short, generic and repeated terms and caps the result.
func filterTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if utf8.RuneCountInString(t) < minTermRunes || genericTerms[key] || stopWords[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// ExtractTerms picks up to three search terms: quoted phrases first, then
// terms proposed by client (when non-nil), then words of the query.
func ExtractTerms(ctx context.Context, client llm.LLMClient, query string) []string {
	if quoted := quotedTerms(query); len(quoted) > 0 {
		if len(quoted) > maxTerms {
			quoted = quoted[:maxTerms]
		}
		return quoted
	}

	if client != nil {
		resp, err := client.Complete(llmmetrics.WithOperation(ctx, "search_terms"),
			llm.Prompt(termsPrompt, "クエリ: "+query, llm.TemperatureDeterministic))
		if err == nil {
			if terms := filterTerms(strings.Split(resp.Content, ",")); len(terms) > 0 {
				return terms
			}
		}
	}

	if terms := filterTerms(splitWords(query)); len(terms) > 0 {
		return terms
	}
	return append([]string(nil), DefaultTerms...)
}

// FileRef is a repository file mentioned in a query.
type FileRef struct {
	Repo string // empty for the host's default repository
	Path string
}

// ExtractFileRefs finds source file references in text. A path directly
// prefixed by "owner/repo:" carries that repository.
func ExtractFileRefs(text string) []FileRef {
	var refs []FileRef
	seen := map[string]bool{}
	for _, loc := range FilePattern.FindAllStringIndex(text, -1) {
		path := text[loc[0]:loc[1]]
		ref := FileRef{Path: path}
		if ms := RepoPattern.FindAllStringSubmatchIndex(text[:loc[0]], -1); len(ms) > 0 {
			if m := ms[len(ms)-1]; m[1] == loc[0] {
				ref.Repo = text[m[2]:m[3]]
			}
		}
		key := ref.Repo + ":" + ref.Path
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, ref)
	}
	return refs
}
