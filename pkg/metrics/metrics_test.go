package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackagent/pkg/workflow"
)

func TestWorkflowObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWorkflow(reg)

	w.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(w.inflight))

	w.StepFinished(workflow.StepClassify, 20*time.Millisecond)
	w.StepFailed(workflow.ErrorKindGenerationFailure)
	w.RequestFinished("data", true, time.Second)
	w.ObserveReply(true)
	w.ObserveReply(false)

	assert.Equal(t, 0.0, testutil.ToFloat64(w.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.requests.WithLabelValues("data", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.stepFailures.WithLabelValues("generation_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.replies.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(w.stepDuration))
}

func vector(label string, samples map[string]string) string {
	var parts []string
	for k, v := range samples {
		parts = append(parts, `{"metric":{"`+label+`":"`+k+`"},"value":[1700000000,"`+v+`"]}`)
	}
	return `{"status":"success","data":{"resultType":"vector","result":[` + strings.Join(parts, ",") + `]}}`
}

func TestGetStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.FormValue("query")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(query, "slackagent_requests_total"):
			_, _ = w.Write([]byte(vector("route", map[string]string{"data": "4", "simple": "2"})))
		case strings.Contains(query, "slackagent_step_failures_total"):
			_, _ = w.Write([]byte(vector("kind", map[string]string{"generation_failure": "1"})))
		case strings.Contains(query, `type="prompt"`):
			_, _ = w.Write([]byte(vector("model", map[string]string{"claude": "120"})))
		case strings.Contains(query, `type="completion"`):
			_, _ = w.Write([]byte(vector("model", map[string]string{"claude": "30"})))
		default:
			http.Error(w, "unexpected query", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	stats, err := q.GetStats(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 4.0, stats.RequestsByRoute["data"])
	assert.Equal(t, 2.0, stats.RequestsByRoute["simple"])
	assert.Equal(t, 1.0, stats.FailuresByKind["generation_failure"])
	require.Contains(t, stats.Tokens, "claude")
	assert.Equal(t, int64(150), stats.Tokens["claude"].TotalTokens)
}

func TestGetStatsPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = q.GetStats(context.Background(), time.Hour)
	require.Error(t, err)
}
