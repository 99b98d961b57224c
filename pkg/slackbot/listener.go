package slackbot

import (
	"context"
	"errors"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"slackagent/pkg/mention"
)

// Sink receives validated mentions, e.g. a queue producer or the in-process
// assistant.
type Sink interface {
	Submit(ctx context.Context, task mention.Task) error
}

// Listener turns socket-mode events into mention tasks and routes button
// clicks to the confirmer.
type Listener struct {
	socket    *socketmode.Client
	sink      Sink
	poster    *Poster
	confirmer *Confirmer
}

// NewListener listens on client, which must carry an app-level token.
// confirmer may be nil when SQL confirmation does not use Slack.
func NewListener(client *slack.Client, sink Sink, confirmer *Confirmer) *Listener {
	return &Listener{
		socket:    socketmode.New(client),
		sink:      sink,
		poster:    NewPoster(client),
		confirmer: confirmer,
	}
}

// Run blocks until ctx ends or the connection fails permanently.
func (l *Listener) Run(ctx context.Context) error {
	go l.handleEvents(ctx)
	logger.Info("🚀 Slack socket-mode listener starting")
	err := l.socket.RunContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Listener) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-l.socket.Events:
			if !ok {
				return
			}
			l.dispatch(ctx, evt)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.Debug("Connecting to Slack...")
	case socketmode.EventTypeConnected:
		logger.Info("✅ Connected to Slack")
	case socketmode.EventTypeConnectionError:
		logger.Warn("⚠️ Slack connection error: %v", evt.Data)
	case socketmode.EventTypeEventsAPI:
		l.ack(evt)
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
			l.HandleMention(ctx, ev)
		}
	case socketmode.EventTypeInteractive:
		l.ack(evt)
		if callback, ok := evt.Data.(slack.InteractionCallback); ok {
			l.HandleInteraction(callback)
		}
	}
}

func (l *Listener) ack(evt socketmode.Event) {
	if evt.Request != nil {
		l.socket.Ack(*evt.Request)
	}
}

// HandleMention validates an app_mention and passes it to the sink. When
// the sink refuses it the user is told in the thread.
func (l *Listener) HandleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.BotID != "" {
		return
	}
	task := mention.New(ev.Text, ev.User, ev.Channel, ev.TimeStamp, ev.ThreadTimeStamp, mention.SourceSlack)
	if err := task.Validate(); err != nil {
		logger.Warn("⚠️ Ignoring mention %s in %s: %v", ev.TimeStamp, ev.Channel, err)
		return
	}
	if err := l.sink.Submit(ctx, task); err != nil {
		logger.Error("❌ Failed to submit mention %s: %v", task.ID, err)
		l.poster.PostReply(ctx, task.ChannelID, task.UserID, QueueErrorReply, task.ReplyThread())
		return
	}
	logger.Info("📨 Mention %s from %s queued", task.ID, task.UserID)
}

// HandleInteraction forwards confirmation button clicks.
func (l *Listener) HandleInteraction(callback slack.InteractionCallback) {
	if l.confirmer == nil || callback.Type != slack.InteractionTypeBlockActions {
		return
	}
	for _, action := range callback.ActionCallback.BlockActions {
		l.confirmer.HandleAction(action.ActionID, action.Value, callback.User.ID)
	}
}
