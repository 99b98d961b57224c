// Package formatter turns a request transcript into a chat reply that fits
// the platform's message ceiling.
package formatter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"slackagent/pkg/agent/llm"
	llmmetrics "slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/logx"
	"slackagent/pkg/workflow"
)

const (
	// DefaultCeiling is the reply limit in runes.
	DefaultCeiling = 2000

	// MinCeiling keeps room for the truncation suffix.
	MinCeiling = 200

	// maxMarkerParagraphs bounds the paragraphs kept besides the first.
	maxMarkerParagraphs = 3

	// truncationReserve is the room left at the end for the suffix.
	truncationReserve = 100
)

// Markers flag paragraphs worth keeping when the reply is condensed.
var Markers = []string{
	"問題分析", "Notionタスク", "URL:", "修正手順", "データベース",
	"結果", "結論", "まとめ", "タスク", "result", "task", "link",
}

const summarizePrompt = `あなたはSlackで回答するアシスタントです。
重要なポイントを保持し、専門用語をわかりやすく説明してください。`

// Option configures a Formatter.
type Option func(*Formatter)

// WithCeiling sets the reply limit in runes. Values below MinCeiling are
// raised to it.
func WithCeiling(n int) Option {
	return func(f *Formatter) {
		if n > 0 {
			f.ceiling = max(n, MinCeiling)
		}
	}
}

// WithSummarizer enables the LLM pass for replies that stay too long after
// condensing.
func WithSummarizer(client llm.LLMClient) Option {
	return func(f *Formatter) { f.summarizer = client }
}

// Formatter implements workflow.Formatter.
type Formatter struct {
	ceiling    int
	summarizer llm.LLMClient
	logger     *logx.Logger
}

// New returns a formatter with the default ceiling and no summarizer.
func New(opts ...Option) *Formatter {
	f := &Formatter{ceiling: DefaultCeiling, logger: logx.NewLogger("formatter")}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ceiling returns the configured limit.
func (f *Formatter) Ceiling() int { return f.ceiling }

// Format joins the transcript and shrinks it until it fits. Without a
// summarizer the result is deterministic. A summarizer failure still returns
// a usable truncated reply together with the error.
func (f *Formatter) Format(ctx context.Context, transcript []workflow.StepMessage) (string, error) {
	full := Join(transcript)
	total := utf8.RuneCountInString(full)
	if total <= f.ceiling {
		return full, nil
	}

	condensed := Condense(full)
	if utf8.RuneCountInString(condensed) <= f.ceiling {
		logx.Debug(ctx, "formatter", "condensed reply from %d runes", total)
		return condensed, nil
	}

	if f.summarizer == nil {
		return Truncate(condensed, f.ceiling, total), nil
	}

	summary, err := f.summarize(ctx, full)
	if err != nil {
		f.logger.Warn("⚠️ Summarizer failed, truncating reply: %v", err)
		return Truncate(condensed, f.ceiling, total), fmt.Errorf("summarize reply: %w", err)
	}
	return Truncate(summary, f.ceiling, total), nil
}

func (f *Formatter) summarize(ctx context.Context, content string) (string, error) {
	user := fmt.Sprintf("次の文章を%d文字以内に要約してください。\n\n%s", f.ceiling, content)
	resp, err := f.summarizer.Complete(llmmetrics.WithOperation(ctx, "summarize_reply"),
		llm.Prompt(summarizePrompt, user, llm.TemperatureDefault))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("summarizer returned an empty reply")
	}
	return summary, nil
}

// Join concatenates transcript contents in order, one paragraph each.
func Join(transcript []workflow.StepMessage) string {
	parts := make([]string, 0, len(transcript))
	for _, m := range transcript {
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Condense keeps the first paragraph and up to three later paragraphs that
// contain a marker.
func Condense(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	kept := []string{paragraphs[0]}
	for _, p := range paragraphs[1:] {
		if len(kept) > maxMarkerParagraphs {
			break
		}
		if hasMarker(p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func hasMarker(p string) bool {
	lower := strings.ToLower(p)
	for _, m := range Markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Truncate cuts text to at most ceiling runes, ending with a note that gives
// the original length. Text already within the ceiling is returned as is.
func Truncate(text string, ceiling, originalLen int) string {
	if utf8.RuneCountInString(text) <= ceiling {
		return text
	}
	suffix := fmt.Sprintf("\n\n...(省略されました。全%d文字)", originalLen)
	keep := ceiling - truncationReserve
	if n := utf8.RuneCountInString(suffix); keep+n > ceiling {
		keep = ceiling - n
	}
	keep = max(keep, 0)
	runes := []rune(text)
	return string(runes[:keep]) + suffix
}
