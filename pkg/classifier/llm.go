package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"slackagent/pkg/agent/llm"
	llmmetrics "slackagent/pkg/agent/middleware/metrics"
	"slackagent/pkg/logx"
	"slackagent/pkg/workflow"
)

const routingPrompt = `You route messages sent to a Slack assistant that can
(1) look up data in the company database with SQL,
(2) review source code in the company repositories, and
(3) create follow-up tasks from a code review.

Reply with a single JSON object and nothing else:
{"needs_data_lookup": bool, "needs_code_review": bool, "needs_task_creation": bool, "reason": "short explanation"}

Set every flag to false for greetings, small talk and general questions.
needs_task_creation only makes sense together with needs_code_review.`

// LLM classifies with a language model. Failures yield a fallback
// simple-reply decision whose reason carries the error.
type LLM struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewLLM creates an LLM-backed classifier.
func NewLLM(client llm.LLMClient) *LLM {
	return &LLM{client: client, logger: logx.NewLogger("classifier")}
}

type routeJSON struct {
	NeedsDataLookup   bool   `json:"needs_data_lookup"`
	NeedsCodeReview   bool   `json:"needs_code_review"`
	NeedsTaskCreation bool   `json:"needs_task_creation"`
	Reason            string `json:"reason"`
}

// Classify implements workflow.Classifier.
func (c *LLM) Classify(ctx context.Context, query string) workflow.RouteDecision {
	ctx = llmmetrics.WithOperation(ctx, "classify")
	resp, err := c.client.Complete(ctx, llm.Prompt(routingPrompt, query, llm.TemperatureDeterministic))
	if err != nil {
		c.logger.Warn("⚠️ LLM classification failed: %v", err)
		return fallback(fmt.Sprintf("classifier error: %v", err))
	}
	route, err := ParseDecision(resp.Content)
	if err != nil {
		c.logger.Warn("⚠️ Unparseable classification %q: %v", resp.Content, err)
		return fallback(fmt.Sprintf("classifier error: %v", err))
	}
	return route
}

func fallback(reason string) workflow.RouteDecision {
	d := workflow.SimpleReply(reason)
	d.Fallback = true
	return d
}

// ParseDecision extracts the first JSON object in text.
func ParseDecision(text string) (workflow.RouteDecision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return workflow.RouteDecision{}, fmt.Errorf("no JSON object in response")
	}
	var r routeJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return workflow.RouteDecision{}, fmt.Errorf("invalid routing JSON: %w", err)
	}
	return workflow.RouteDecision{
		NeedsDataLookup:   r.NeedsDataLookup,
		NeedsCodeReview:   r.NeedsCodeReview,
		NeedsTaskCreation: r.NeedsTaskCreation,
		Reason:            r.Reason,
	}, nil
}

// Chain asks primary first and falls back to secondary when primary
// reports a failure. The result keeps the Fallback mark so the failure is
// still recorded.
type Chain struct {
	primary   workflow.Classifier
	secondary workflow.Classifier
}

// NewChain builds a fallback chain.
func NewChain(primary, secondary workflow.Classifier) *Chain {
	return &Chain{primary: primary, secondary: secondary}
}

// Classify implements workflow.Classifier.
func (c *Chain) Classify(ctx context.Context, query string) workflow.RouteDecision {
	d := c.primary.Classify(ctx, query)
	if !d.Fallback {
		return d
	}
	alt := c.secondary.Classify(ctx, query)
	alt.Reason = d.Reason + "; " + alt.Reason
	alt.Fallback = true
	return alt
}

const replyPrompt = `あなたは社内Slackのアシスタントです。質問に日本語で簡潔に答えてください。
データベースやソースコードの調査が必要な質問には、その旨を伝えてください。`

// Responder answers simple messages directly with the model.
type Responder struct {
	client llm.LLMClient
}

// NewResponder creates an LLM responder.
func NewResponder(client llm.LLMClient) *Responder {
	return &Responder{client: client}
}

// Respond implements workflow.Responder.
func (r *Responder) Respond(ctx context.Context, query string) (string, error) {
	ctx = llmmetrics.WithOperation(ctx, "respond")
	resp, err := r.client.Complete(ctx, llm.Prompt(replyPrompt, query, llm.TemperatureDefault))
	if err != nil {
		return "", fmt.Errorf("direct reply: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

var (
	_ workflow.Classifier = (*LLM)(nil)
	_ workflow.Classifier = (*Chain)(nil)
	_ workflow.Responder  = (*Responder)(nil)
)
