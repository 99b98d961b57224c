// Package mention defines the ingress record for a chat mention and the
// rules it must satisfy before a workflow run starts from it.
package mention

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"slackagent/pkg/workflow"
)

// MaxTextBytes matches Slack's limit for a single message.
const MaxTextBytes = 40000

// SourceSlack marks tasks received from the Slack listener.
const SourceSlack = "slack"

var (
	mentionToken = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)
	slackTS      = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxTextBytes
	})
	_ = validate.RegisterValidation("slackts", func(fl validator.FieldLevel) bool {
		return slackTS.MatchString(fl.Field().String())
	})
}

// ErrEmptyQuery is returned when nothing is left after removing mentions.
var ErrEmptyQuery = errors.New("mention has no text besides user mentions")

// Task is one mention waiting to be processed. The JSON names are the queue
// wire format.
type Task struct {
	ID              string    `json:"id" validate:"required,uuid"`
	Text            string    `json:"text" validate:"required,maxbytes"`
	UserID          string    `json:"user" validate:"required"`
	ChannelID       string    `json:"channel" validate:"required"`
	Timestamp       string    `json:"ts" validate:"required,slackts"`
	ThreadTimestamp string    `json:"thread_ts,omitempty" validate:"omitempty,slackts"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// New builds a task with a fresh id.
func New(text, userID, channelID, ts, threadTS, source string) Task {
	return Task{
		ID:              uuid.NewString(),
		Text:            text,
		UserID:          userID,
		ChannelID:       channelID,
		Timestamp:       ts,
		ThreadTimestamp: threadTS,
		Source:          source,
		CreatedAt:       time.Now().UTC(),
	}
}

// Validate checks the required fields and that a query remains once
// mentions are stripped.
func (t Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid mention: %w", err)
	}
	if t.Query() == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ReplyThread is the thread replies go to: the original thread when the
// mention was inside one, otherwise the mention itself.
func (t Task) ReplyThread() string {
	if t.ThreadTimestamp != "" {
		return t.ThreadTimestamp
	}
	return t.Timestamp
}

// Query is the text with user mentions removed.
func (t Task) Query() string {
	return StripMentions(t.Text)
}

// Request converts the task into a workflow request.
func (t Task) Request(sourceLink string) workflow.Request {
	return workflow.Request{
		ID:         t.ID,
		Query:      t.Query(),
		UserID:     t.UserID,
		ChannelID:  t.ChannelID,
		MessageTS:  t.Timestamp,
		ThreadTS:   t.ReplyThread(),
		SourceLink: sourceLink,
	}
}

// StripMentions removes <@U123> tokens and collapses the whitespace left
// behind.
func StripMentions(text string) string {
	return strings.Join(strings.Fields(mentionToken.ReplaceAllString(text, " ")), " ")
}
