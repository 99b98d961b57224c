package slackbot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/pkg/mention"
	"slackagent/pkg/workflow"
)

// fakeSlack records Web API calls and answers with canned responses.
type fakeSlack struct {
	mu        sync.Mutex
	calls     map[string][]url.Values
	posted    chan url.Values
	failPost  bool
	permalink string
}

func newFakeSlack(t *testing.T) (*fakeSlack, *slack.Client) {
	t.Helper()
	f := &fakeSlack{calls: map[string][]url.Values{}, posted: make(chan url.Values, 10)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, NewClient("xoxb-test", "xapp-test", slack.OptionAPIURL(srv.URL+"/"))
}

func (f *fakeSlack) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[1:]

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.Form)
	failPost, permalink := f.failPost, f.permalink
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "chat.postMessage":
		if failPost {
			_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		f.posted <- r.Form
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"200.1"}`))
	case "chat.update":
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"200.1","text":"done"}`))
	case "chat.getPermalink":
		if permalink == "" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"message_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","permalink":"` + permalink + `"}`))
	default:
		_, _ = w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
	}
}

func (f *fakeSlack) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

func TestPostReplyMentionsUserInThread(t *testing.T) {
	fake, client := newFakeSlack(t)
	p := NewPoster(client)

	ok := p.PostReply(context.Background(), "C1", "U42", "結果: 3 件", "100.1")
	require.True(t, ok)

	form := <-fake.posted
	assert.Equal(t, "<@U42> 結果: 3 件", form.Get("text"))
	assert.Equal(t, "100.1", form.Get("thread_ts"))
	assert.Equal(t, "C1", form.Get("channel"))
}

func TestPostReplyFailure(t *testing.T) {
	fake, client := newFakeSlack(t)
	fake.failPost = true

	assert.False(t, NewPoster(client).PostReply(context.Background(), "C1", "U1", "hi", ""))
	assert.Equal(t, 1, fake.count("chat.postMessage"), "failed posts are not retried")
	assert.False(t, NewPoster(nil).PostReply(context.Background(), "C1", "U1", "hi", ""))
}

func TestPermalink(t *testing.T) {
	fake, client := newFakeSlack(t)
	ctx := context.Background()

	assert.Equal(t, "slack://channel?id=C1&message=100.1", Permalink(ctx, client, "C1", "100.1"))

	fake.permalink = "https://acme.slack.com/archives/C1/p1001"
	assert.Equal(t, fake.permalink, Permalink(ctx, client, "C1", "100.1"))

	assert.Equal(t, FallbackLink("C9", "1.2"), Permalink(ctx, nil, "C9", "1.2"))
}

var tokenPattern = regexp.MustCompile(`"value":"([0-9a-f-]{36})"`)

func confirmRequest() workflow.ConfirmationRequest {
	return workflow.ConfirmationRequest{
		RequestID: "r1",
		SQL:       "SELECT COUNT(*) FROM users",
		Query:     "ユーザー数は？",
		ChannelID: "C1",
		ThreadTS:  "100.1",
	}
}

func TestConfirmerApprove(t *testing.T) {
	fake, client := newFakeSlack(t)
	c := NewConfirmer(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan workflow.ConfirmationStatus, 1)
	go func() { result <- c.Confirm(ctx, confirmRequest()) }()

	form := <-fake.posted
	assert.Equal(t, "100.1", form.Get("thread_ts"))
	m := tokenPattern.FindStringSubmatch(form.Get("blocks"))
	require.Len(t, m, 2, form.Get("blocks"))

	assert.False(t, c.HandleAction("other_action", m[1], "U9"))
	assert.False(t, c.HandleAction(ActionApprove, "unknown-token", "U9"))
	require.True(t, c.HandleAction(ActionApprove, m[1], "U9"))

	assert.Equal(t, workflow.ConfirmationApproved, <-result)
	assert.Equal(t, 1, fake.count("chat.update"))
	assert.Zero(t, c.Waiting())
}

func TestConfirmerReject(t *testing.T) {
	fake, client := newFakeSlack(t)
	c := NewConfirmer(client)

	result := make(chan workflow.ConfirmationStatus, 1)
	go func() { result <- c.Confirm(context.Background(), confirmRequest()) }()

	form := <-fake.posted
	m := tokenPattern.FindStringSubmatch(form.Get("blocks"))
	require.Len(t, m, 2)
	require.True(t, c.HandleAction(ActionReject, m[1], "U9"))
	assert.Equal(t, workflow.ConfirmationRejected, <-result)
}

func TestConfirmerTimeoutIsPending(t *testing.T) {
	_, client := newFakeSlack(t)
	c := NewConfirmer(client)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Equal(t, workflow.ConfirmationPending, c.Confirm(ctx, confirmRequest()))
	assert.Zero(t, c.Waiting())
}

func TestConfirmerPostFailureIsPending(t *testing.T) {
	fake, client := newFakeSlack(t)
	fake.failPost = true

	status := NewConfirmer(client).Confirm(context.Background(), confirmRequest())
	assert.Equal(t, workflow.ConfirmationPending, status)
}

type recordingSink struct {
	mu    sync.Mutex
	tasks []mention.Task
	err   error
}

func (s *recordingSink) Submit(_ context.Context, task mention.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func TestHandleMention(t *testing.T) {
	fake, client := newFakeSlack(t)
	sink := &recordingSink{}
	l := NewListener(client, sink, nil)
	ctx := context.Background()

	l.HandleMention(ctx, &slackevents.AppMentionEvent{
		User: "U1", Channel: "C1", Text: "<@UBOT> 売上を教えて", TimeStamp: "100.1",
	})
	l.HandleMention(ctx, &slackevents.AppMentionEvent{
		User: "U1", Channel: "C1", Text: "<@UBOT>", TimeStamp: "100.2",
	})
	l.HandleMention(ctx, &slackevents.AppMentionEvent{
		BotID: "B1", User: "U2", Channel: "C1", Text: "<@UBOT> loop", TimeStamp: "100.3",
	})

	require.Len(t, sink.tasks, 1)
	assert.Equal(t, "売上を教えて", sink.tasks[0].Query())
	assert.Equal(t, mention.SourceSlack, sink.tasks[0].Source)
	assert.Zero(t, fake.count("chat.postMessage"))
}

func TestHandleMentionSinkFailureNotifiesUser(t *testing.T) {
	fake, client := newFakeSlack(t)
	l := NewListener(client, &recordingSink{err: errors.New("redis down")}, nil)

	l.HandleMention(context.Background(), &slackevents.AppMentionEvent{
		User: "U1", Channel: "C1", Text: "<@UBOT> hi", TimeStamp: "100.1", ThreadTimeStamp: "99.0",
	})

	form := <-fake.posted
	assert.Equal(t, "<@U1> "+QueueErrorReply, form.Get("text"))
	assert.Equal(t, "99.0", form.Get("thread_ts"))
}

func TestHandleInteractionRoutesClicks(t *testing.T) {
	fake, client := newFakeSlack(t)
	c := NewConfirmer(client)
	l := NewListener(client, &recordingSink{}, c)

	result := make(chan workflow.ConfirmationStatus, 1)
	go func() { result <- c.Confirm(context.Background(), confirmRequest()) }()
	form := <-fake.posted
	m := tokenPattern.FindStringSubmatch(form.Get("blocks"))
	require.Len(t, m, 2)

	var cb slack.InteractionCallback
	cb.Type = slack.InteractionTypeBlockActions
	cb.User.ID = "U9"
	cb.ActionCallback.BlockActions = []*slack.BlockAction{{ActionID: ActionApprove, Value: m[1]}}
	l.HandleInteraction(cb)

	assert.Equal(t, workflow.ConfirmationApproved, <-result)
}
