package slackbot

import (
	"context"

	"github.com/slack-go/slack"

	"slackagent/pkg/logx"
)

var logger = logx.NewLogger("slackbot")

// QueueErrorReply is posted when a mention could not be handed to the queue.
const QueueErrorReply = "メッセージキューへの送信中にエラーが発生しました。"

// Poster sends replies into Slack threads.
type Poster struct {
	api API
}

// NewPoster returns a poster. A nil api makes every post fail.
func NewPoster(api API) *Poster {
	return &Poster{api: api}
}

// PostReply posts text to channelID, inside threadTS when set, mentioning
// userID when set. Failures are logged and reported as false; nothing is
// retried.
func (p *Poster) PostReply(ctx context.Context, channelID, userID, text, threadTS string) bool {
	if p == nil || p.api == nil {
		logger.Warn("⚠️ No Slack client configured, reply to %s dropped", channelID)
		return false
	}
	if userID != "" {
		text = "<@" + userID + "> " + text
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := p.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		logger.Error("❌ Failed to post reply to %s: %v", channelID, err)
		return false
	}
	logx.Debug(ctx, "slackbot", "posted %d byte reply to %s", len(text), channelID)
	return true
}
