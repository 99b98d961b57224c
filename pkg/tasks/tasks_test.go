package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/internal/mocks"
	"slackagent/pkg/github"
	"slackagent/pkg/persistence"
	"slackagent/pkg/tasks"
	"slackagent/pkg/workflow"
)

const analysis = `問題分析のまとめ:
auth/login.go のリダイレクト処理の修正が必要です。優先度: high

ファイル「auth/login.go」の問題分析:
- 未完了の TODO コメントがあります
- エラーハンドリングが不完全な可能性があります`

var (
	taskRoute = workflow.RouteDecision{NeedsCodeReview: true, NeedsTaskCreation: true}
	request   = workflow.Request{
		ID:         "req-1",
		Query:      "login redirect is broken after auth",
		UserID:     "U42",
		SourceLink: "https://example.slack.com/archives/C1/p1",
	}
	fixedNow = time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
)

func TestHasSignal(t *testing.T) {
	assert.True(t, tasks.HasSignal("修正が必要です"))
	assert.True(t, tasks.HasSignal("You SHOULD fix this"))
	assert.True(t, tasks.HasSignal("tests are required"))
	assert.False(t, tasks.HasSignal("明らかな問題は検出されませんでした"))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "auth/login.go の修正", tasks.Title(analysis))
	assert.Equal(t, tasks.GenericTitle, tasks.Title("修正が必要です"))
}

func TestSteps(t *testing.T) {
	assert.Equal(t, []string{"未完了の TODO コメントがあります", "エラーハンドリングが不完全な可能性があります"}, tasks.Steps(analysis))
	assert.Equal(t, tasks.DefaultSteps, tasks.Steps("no bullets here"))

	many := strings.Repeat("- step\n", 8)
	assert.Len(t, tasks.Steps(many), 5)
}

func TestPriority(t *testing.T) {
	tests := map[string]string{
		"優先度: 高":         tasks.PriorityHigh,
		"優先度：低":          tasks.PriorityLow,
		"優先度: Medium":    tasks.PriorityMedium,
		"優先度:HIGH":       tasks.PriorityHigh,
		"nothing stated": tasks.PriorityMedium,
	}
	for in, want := range tests {
		assert.Equal(t, want, tasks.Priority(in), in)
	}
}

type fakeStore struct {
	got []workflow.TaskRecord
	err error
}

func (f *fakeStore) Create(_ context.Context, rec workflow.TaskRecord) (string, string, error) {
	f.got = append(f.got, rec)
	if f.err != nil {
		return "", "", f.err
	}
	return "T-1", "https://tasks.example.com/T-1", nil
}

func TestMaybeCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("created", func(t *testing.T) {
		store := &fakeStore{}
		c := tasks.NewCreator(store, tasks.WithClock(func() time.Time { return fixedNow }))

		opt, err := c.MaybeCreateTask(ctx, taskRoute, analysis, request)
		require.NoError(t, err)
		require.True(t, opt.IsSome())
		rec := opt.UnwrapOr(workflow.TaskRecord{})

		assert.Equal(t, "T-1", rec.ID)
		assert.Equal(t, "https://tasks.example.com/T-1", rec.URL)
		assert.Equal(t, "auth/login.go の修正", rec.Title)
		assert.Equal(t, tasks.PriorityHigh, rec.Priority)
		assert.Equal(t, request.SourceLink, rec.SourceLink)
		assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), rec.DueDate)
		assert.Contains(t, rec.Description, request.Query)
		assert.Contains(t, rec.Description, "<@U42>")
		assert.Contains(t, rec.Description, "リダイレクト処理の修正")
		require.Len(t, store.got, 1)
	})

	t.Run("route without task", func(t *testing.T) {
		store := &fakeStore{}
		opt, err := tasks.NewCreator(store).MaybeCreateTask(ctx, workflow.RouteDecision{NeedsCodeReview: true}, analysis, request)
		require.NoError(t, err)
		assert.True(t, opt.IsNone())
		assert.Empty(t, store.got)
	})

	t.Run("no signal", func(t *testing.T) {
		store := &fakeStore{}
		opt, err := tasks.NewCreator(store).MaybeCreateTask(ctx, taskRoute, "明らかな問題は検出されませんでした", request)
		require.NoError(t, err)
		assert.True(t, opt.IsNone())
		assert.Empty(t, store.got)
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fakeStore{err: errors.New("notion down")}
		opt, err := tasks.NewCreator(store).MaybeCreateTask(ctx, taskRoute, analysis, request)
		require.ErrorContains(t, err, "notion down")
		assert.True(t, opt.IsNone())
	})

	t.Run("nil store builds record only", func(t *testing.T) {
		opt, err := tasks.NewCreator(nil).MaybeCreateTask(ctx, taskRoute, analysis, request)
		require.NoError(t, err)
		assert.True(t, opt.IsSome())
	})
}

func TestMarkdown(t *testing.T) {
	rec := tasks.NewCreator(nil, tasks.WithClock(func() time.Time { return fixedNow })).Build(analysis, request)
	md := tasks.Markdown(rec)
	assert.Contains(t, md, "## 概要")
	assert.Contains(t, md, "## 手順\n\n1. 未完了の TODO コメントがあります\n2. ")
	assert.Contains(t, md, "優先度: 高 / 期限: 2026-03-09")
	assert.Contains(t, md, "## 参照リンク\n\n**Slackスレッド:** "+request.SourceLink)
}

func TestNotionBlocks(t *testing.T) {
	store := tasks.NewNotionStore("tok", "db", "")
	blocks := store.Blocks("## 手順\n\n1. first\n2. second\n\n- **bold** and `code`\n\n```go\nfmt.Println()\n```\n\nsee <https://example.com>\n")

	var types []string
	for _, b := range blocks {
		types = append(types, b.Type)
	}
	assert.Equal(t, []string{
		"heading_2", "numbered_list_item", "numbered_list_item",
		"bulleted_list_item", "code", "paragraph",
	}, types)

	raw, err := json.Marshal(blocks[3])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bulleted_list_item":{"rich_text":[`)
	assert.Contains(t, string(raw), `"annotations":{"bold":true}`)
	assert.Contains(t, string(raw), `"annotations":{"code":true}`)

	raw, err = json.Marshal(blocks[4])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"language":"go"`)
	assert.Contains(t, string(raw), `fmt.Println()`)

	raw, err = json.Marshal(blocks[5])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"link":{"url":"https://example.com"}`)
}

func TestNotionStoreCreate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Notion-Version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"page","id":"page-1","url":"https://www.notion.so/page-1"}`))
	}))
	defer srv.Close()

	store := tasks.NewNotionStore("secret", "db-123", srv.URL)
	rec := tasks.NewCreator(nil).Build(analysis, request)

	id, url, err := store.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
	assert.Equal(t, "https://www.notion.so/page-1", url)

	parent := got["parent"].(map[string]any)
	assert.Equal(t, "db-123", parent["database_id"])
	props := got["properties"].(map[string]any)
	assert.Contains(t, props, "タイトル")
	status := props["ステータス"].(map[string]any)["select"].(map[string]any)
	assert.Equal(t, "未対応", status["name"])
	assert.NotEmpty(t, got["children"])
}

func TestNotionStoreAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"タイトル is not a property"}`))
	}))
	defer srv.Close()

	_, _, err := tasks.NewNotionStore("secret", "db", srv.URL).Create(context.Background(), workflow.TaskRecord{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation_error")
}

func TestGitHubIssueStore(t *testing.T) {
	var args []string
	runner := func(_ context.Context, a ...string) ([]byte, error) {
		args = a
		return []byte("https://github.com/acme/api/issues/9\n"), nil
	}
	store := tasks.NewGitHubIssueStore(github.NewClientWithRunner("acme", "api", runner), []string{"slackagent"})

	id, url, err := store.Create(context.Background(), workflow.TaskRecord{Title: "auth/login.go の修正", Steps: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "9", id)
	assert.Equal(t, "https://github.com/acme/api/issues/9", url)
	assert.Contains(t, strings.Join(args, " "), "--label slackagent")
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.Open(ctx, filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	defer db.Close()

	store := tasks.NewSQLiteStore(db.DB())
	rec := tasks.NewCreator(nil, tasks.WithClock(func() time.Time { return fixedNow })).Build(analysis, request)

	id, url, err := store.Create(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, "task:"+id, url)

	loaded, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rec.Title, loaded.Title)
	assert.Equal(t, rec.Steps, loaded.Steps)
	assert.Equal(t, rec.Priority, loaded.Priority)
	assert.True(t, rec.DueDate.Equal(loaded.DueDate))

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestCreatorWithMockStore(t *testing.T) {
	store := mocks.NewMockTaskStore()
	opt, err := tasks.NewCreator(store).MaybeCreateTask(context.Background(), taskRoute, analysis, request)
	require.NoError(t, err)
	require.True(t, opt.IsSome())
	assert.Equal(t, 1, store.CreateCount())
}
