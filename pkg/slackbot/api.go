// Package slackbot connects the assistant to Slack: a socket-mode listener
// for mentions and button clicks, the reply poster, permalinks, and the
// button-based SQL confirmer.
package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// API is the part of *slack.Client the bot uses.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error)
}

var _ API = (*slack.Client)(nil)

// NewClient builds a Slack web client. appToken may be empty when socket
// mode is not used.
func NewClient(botToken, appToken string, opts ...slack.Option) *slack.Client {
	if appToken != "" {
		opts = append([]slack.Option{slack.OptionAppLevelToken(appToken)}, opts...)
	}
	return slack.New(botToken, opts...)
}

// FallbackLink is used when Slack cannot produce a permalink.
func FallbackLink(channelID, ts string) string {
	return fmt.Sprintf("slack://channel?id=%s&message=%s", channelID, ts)
}

// Permalink returns the web link of a message, or FallbackLink when api is
// nil or the lookup fails.
func Permalink(ctx context.Context, api API, channelID, ts string) string {
	if api == nil {
		return FallbackLink(channelID, ts)
	}
	link, err := api.GetPermalinkContext(ctx, &slack.PermalinkParameters{Channel: channelID, Ts: ts})
	if err != nil || link == "" {
		logger.Warn("⚠️ Permalink lookup failed for %s/%s: %v", channelID, ts, err)
		return FallbackLink(channelID, ts)
	}
	return link
}
