package slackbot

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"slackagent/pkg/workflow"
)

// Action ids of the confirmation buttons.
const (
	ActionApprove = "sql_approve"
	ActionReject  = "sql_reject"
)

// Confirmer asks for SQL approval with Approve/Reject buttons. A request
// without a click before ctx ends stays Pending.
type Confirmer struct {
	api API

	mu      sync.Mutex
	pending map[string]chan workflow.ConfirmationStatus
}

// NewConfirmer returns a confirmer posting through api.
func NewConfirmer(api API) *Confirmer {
	return &Confirmer{api: api, pending: make(map[string]chan workflow.ConfirmationStatus)}
}

// Waiting returns how many confirmations are open.
func (c *Confirmer) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Confirm implements workflow.Confirmer.
func (c *Confirmer) Confirm(ctx context.Context, req workflow.ConfirmationRequest) workflow.ConfirmationStatus {
	token := uuid.NewString()
	decision := make(chan workflow.ConfirmationStatus, 1)

	c.mu.Lock()
	c.pending[token] = decision
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
	}()

	opts := []slack.MsgOption{
		slack.MsgOptionText("SQLの実行確認", false),
		slack.MsgOptionBlocks(confirmationBlocks(token, req)...),
	}
	if req.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(req.ThreadTS))
	}
	_, ts, err := c.api.PostMessageContext(ctx, req.ChannelID, opts...)
	if err != nil {
		logger.Error("❌ Failed to post confirmation for %s: %v", req.RequestID, err)
		return workflow.ConfirmationPending
	}
	logger.Info("⏳ Waiting for SQL confirmation on %s", req.RequestID)

	select {
	case status := <-decision:
		c.settle(req.ChannelID, ts, status.String())
		return status
	case <-ctx.Done():
		c.settle(req.ChannelID, ts, "timeout")
		logger.Warn("⚠️ Confirmation for %s timed out", req.RequestID)
		return workflow.ConfirmationPending
	}
}

// settle replaces the buttons with the outcome. It uses its own context
// because the request context may already be done.
func (c *Confirmer) settle(channelID, ts, outcome string) {
	text := fmt.Sprintf("SQLの実行確認: %s", outcome)
	outcomeBlock := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
	if _, _, _, err := c.api.UpdateMessageContext(context.Background(), channelID, ts,
		slack.MsgOptionText(text, false), slack.MsgOptionBlocks(outcomeBlock)); err != nil {
		logger.Warn("⚠️ Failed to update confirmation message: %v", err)
	}
}

// HandleAction delivers a button click. It reports whether the click
// matched an open confirmation.
func (c *Confirmer) HandleAction(actionID, token, userID string) bool {
	var status workflow.ConfirmationStatus
	switch actionID {
	case ActionApprove:
		status = workflow.ConfirmationApproved
	case ActionReject:
		status = workflow.ConfirmationRejected
	default:
		return false
	}

	c.mu.Lock()
	decision, ok := c.pending[token]
	c.mu.Unlock()
	if !ok {
		logger.Warn("⚠️ Click on unknown or expired confirmation %s", token)
		return false
	}

	select {
	case decision <- status:
		logger.Info("SQL %s by %s", status, userID)
		return true
	default:
		return false
	}
}

func confirmationBlocks(token string, req workflow.ConfirmationRequest) []slack.Block {
	header := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
		fmt.Sprintf(":warning: *次のSQLを実行してよろしいですか？*\n> %s", req.Query), false, false), nil, nil)
	query := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
		"```"+req.SQL+"```", false, false), nil, nil)

	approve := slack.NewButtonBlockElement(ActionApprove, token,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false))
	approve.Style = slack.StylePrimary
	reject := slack.NewButtonBlockElement(ActionReject, token,
		slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false))
	reject.Style = slack.StyleDanger

	return []slack.Block{header, query, slack.NewActionBlock("sql_confirm_"+token, approve, reject)}
}
