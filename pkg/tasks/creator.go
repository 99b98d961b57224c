// Package tasks turns code analysis that calls for follow-up into task
// records and persists them in Notion, GitHub issues or a local SQLite table.
package tasks

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"slackagent/pkg/logx"
	"slackagent/pkg/research"
	"slackagent/pkg/workflow"
)

// GenericTitle is used when the analysis names no source file.
const GenericTitle = "コード修正タスク"

// Priorities.
const (
	PriorityHigh   = "高"
	PriorityMedium = "中"
	PriorityLow    = "低"
)

const (
	maxSteps   = 5
	defaultDue = 7 * 24 * time.Hour
)

// SignalTerms mark an analysis as calling for follow-up work.
var SignalTerms = []string{"修正", "対応", "改善", "必要", "should", "must", "fix", "improve", "required"}

// DefaultSteps are used when no steps can be derived from the analysis.
var DefaultSteps = []string{
	"問題の再現手順を確認する",
	"該当箇所のコードを調査する",
	"修正方針を決めて実装する",
	"テストを追加・実行する",
	"レビューを依頼してマージする",
}

var priorityPattern = regexp.MustCompile(`(?i)優先度[：:]\s*([高中低]|high|medium|low)`)

// Store persists a task and returns its identifier and a link to it.
type Store interface {
	Create(ctx context.Context, rec workflow.TaskRecord) (id, url string, err error)
}

// Option configures a Creator.
type Option func(*Creator)

// WithClock overrides the time source used for due dates.
func WithClock(now func() time.Time) Option {
	return func(c *Creator) { c.now = now }
}

// WithDueIn sets how far ahead due dates are placed.
func WithDueIn(d time.Duration) Option {
	return func(c *Creator) { c.dueIn = d }
}

// Creator implements workflow.TaskCreator. A nil store builds records
// without persisting them.
type Creator struct {
	store  Store
	now    func() time.Time
	dueIn  time.Duration
	logger *logx.Logger
}

// NewCreator returns a creator writing to store.
func NewCreator(store Store, opts ...Option) *Creator {
	c := &Creator{store: store, now: time.Now, dueIn: defaultDue, logger: logx.NewLogger("tasks")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasSignal reports whether analysis contains a follow-up signal term.
func HasSignal(analysis string) bool {
	lower := strings.ToLower(analysis)
	for _, t := range SignalTerms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// MaybeCreateTask builds and stores a task when the route asks for one and
// the analysis signals follow-up. A store failure returns None and the error.
func (c *Creator) MaybeCreateTask(ctx context.Context, route workflow.RouteDecision, analysis string, req workflow.Request) (fn.Option[workflow.TaskRecord], error) {
	if !route.NeedsTaskCreation || !HasSignal(analysis) {
		return fn.None[workflow.TaskRecord](), nil
	}

	rec := c.Build(analysis, req)
	if c.store == nil {
		return fn.Some(rec), nil
	}

	id, url, err := c.store.Create(ctx, rec)
	if err != nil {
		c.logger.Error("❌ Failed to store task %q: %v", rec.Title, err)
		return fn.None[workflow.TaskRecord](), fmt.Errorf("store task: %w", err)
	}
	rec.ID, rec.URL = id, url
	c.logger.Info("📝 Created task %s: %s", id, rec.Title)
	return fn.Some(rec), nil
}

// Build derives a task record from analysis.
func (c *Creator) Build(analysis string, req workflow.Request) workflow.TaskRecord {
	return workflow.TaskRecord{
		Title:       Title(analysis),
		Description: Description(req, analysis),
		Steps:       Steps(analysis),
		SourceLink:  req.SourceLink,
		Priority:    Priority(analysis),
		DueDate:     c.now().Add(c.dueIn).Truncate(24 * time.Hour),
	}
}

// Title names the first referenced source file, or GenericTitle.
func Title(analysis string) string {
	if m := research.FilePattern.FindString(analysis); m != "" {
		return m + " の修正"
	}
	return GenericTitle
}

// Description combines the originating request with the analysis.
func Description(req workflow.Request, analysis string) string {
	var b strings.Builder
	b.WriteString("## 依頼内容\n\n")
	b.WriteString(strings.TrimSpace(req.Query))
	if req.UserID != "" {
		fmt.Fprintf(&b, "\n\n依頼者: <@%s>", req.UserID)
	}
	b.WriteString("\n\n## 分析結果\n\n")
	b.WriteString(strings.TrimSpace(analysis))
	return b.String()
}

// Steps takes up to five "- " bullets from analysis, or DefaultSteps.
func Steps(analysis string) []string {
	var steps []string
	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		if step := strings.TrimSpace(line[2:]); step != "" {
			steps = append(steps, step)
		}
		if len(steps) == maxSteps {
			break
		}
	}
	if len(steps) == 0 {
		return append([]string(nil), DefaultSteps...)
	}
	return steps
}

// Priority reads "優先度: 高|中|低|high|medium|low", defaulting to 中.
func Priority(analysis string) string {
	m := priorityPattern.FindStringSubmatch(analysis)
	if m == nil {
		return PriorityMedium
	}
	switch strings.ToLower(m[1]) {
	case "高", "high":
		return PriorityHigh
	case "低", "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Markdown renders rec as the Markdown body used by the stores.
func Markdown(rec workflow.TaskRecord) string {
	var b strings.Builder
	b.WriteString("## 概要\n\n")
	b.WriteString(rec.Description)
	b.WriteString("\n\n## 手順\n\n")
	for i, s := range rec.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	fmt.Fprintf(&b, "\n優先度: %s", rec.Priority)
	if !rec.DueDate.IsZero() {
		fmt.Fprintf(&b, " / 期限: %s", rec.DueDate.Format("2006-01-02"))
	}
	if rec.SourceLink != "" {
		fmt.Fprintf(&b, "\n\n## 参照リンク\n\n**Slackスレッド:** %s\n", rec.SourceLink)
	}
	return b.String()
}
