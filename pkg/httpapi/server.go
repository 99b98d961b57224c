// Package httpapi exposes the assistant over HTTP with gin: health, async
// and synchronous mention intake, Prometheus metrics and recent log lines.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"slackagent/pkg/assistant"
	"slackagent/pkg/logx"
	"slackagent/pkg/mention"
	"slackagent/pkg/version"
)

// SourceHTTP marks tasks received over HTTP.
const SourceHTTP = "http"

const shutdownTimeout = 10 * time.Second

// Intake accepts tasks for background processing.
type Intake interface {
	Submit(ctx context.Context, task mention.Task) error
}

// DirectRunner processes a task and returns the result.
type DirectRunner interface {
	Direct(ctx context.Context, task mention.Task) (assistant.Result, error)
}

// Config tunes the server.
type Config struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
	ServiceName       string
}

// MentionRequest is the body of both mention endpoints.
type MentionRequest struct {
	Text            string `json:"text" binding:"required"`
	UserID          string `json:"user_id" binding:"required"`
	ChannelID       string `json:"channel_id" binding:"required"`
	Timestamp       string `json:"timestamp" binding:"required"`
	ThreadTimestamp string `json:"thread_timestamp"`
}

func (r MentionRequest) task() mention.Task {
	return mention.New(r.Text, r.UserID, r.ChannelID, r.Timestamp, r.ThreadTimestamp, SourceHTTP)
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine *gin.Engine
	cfg    Config
	logger *logx.Logger
}

// New builds the router. intake or direct may be nil, which disables the
// matching endpoint. gatherer backs /metrics; nil uses the default registry.
func New(cfg Config, intake Intake, direct DirectRunner, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	if cfg.ServiceName == "" {
		cfg.ServiceName = "slackagent"
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{engine: gin.New(), cfg: cfg, logger: logx.NewLogger("http")}
	s.engine.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), s.requestLog())

	s.engine.GET("/health", handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/debug/logs", handleLogs)

	v1 := s.engine.Group("/v1")
	if cfg.RequestsPerSecond > 0 {
		v1.Use(RateLimit(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))))
	}
	if intake != nil {
		v1.POST("/mentions", handleSubmit(intake))
	}
	if direct != nil {
		v1.POST("/mentions/direct", handleDirect(direct))
	}
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🚀 HTTP API listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP API stopped")
	return nil
}

// RateLimit rejects requests beyond limiter's budget with 429.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logx.Debug(c.Request.Context(), "http", "%s %s -> %d in %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started).Round(time.Millisecond))
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

// handleLogs returns buffered log lines, optionally filtered by component
// and a look-back window such as since=15m.
func handleLogs(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration, e.g. 15m"})
			return
		}
		since = time.Now().Add(-d)
	}
	c.JSON(http.StatusOK, gin.H{"entries": logx.GetRecentLogEntries(c.Query("component"), since)})
}

func bindTask(c *gin.Context) (mention.Task, bool) {
	var req MentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return mention.Task{}, false
	}
	task := req.task()
	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return mention.Task{}, false
	}
	return task, true
}

func handleSubmit(intake Intake) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, ok := bindTask(c)
		if !ok {
			return
		}
		if err := intake.Submit(c.Request.Context(), task); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, assistant.ErrDraining) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": task.ID, "status": "accepted"})
	}
}

// DirectResponse is the body returned by /v1/mentions/direct.
type DirectResponse struct {
	ID            string            `json:"id"`
	Route         string            `json:"route"`
	FinalResponse string            `json:"final_response"`
	Transcript    []TranscriptEntry `json:"transcript"`
	Error         string            `json:"error,omitempty"`
	DurationMS    int64             `json:"duration_ms"`
}

// TranscriptEntry is one transcript line in a DirectResponse.
type TranscriptEntry struct {
	Step    string `json:"step"`
	Content string `json:"content"`
	Failure string `json:"failure,omitempty"`
}

func handleDirect(direct DirectRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, ok := bindTask(c)
		if !ok {
			return
		}
		res, err := direct.Direct(c.Request.Context(), task)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toDirectResponse(res))
	}
}

func toDirectResponse(res assistant.Result) DirectResponse {
	snap := res.Snapshot
	out := DirectResponse{
		ID:            snap.ID,
		Route:         "simple",
		FinalResponse: snap.FinalResponse,
		Transcript:    make([]TranscriptEntry, 0, len(snap.Transcript)),
		DurationMS:    res.Duration.Milliseconds(),
	}
	if snap.Route != nil {
		out.Route = snap.Route.Label()
	}
	if snap.Error != nil {
		out.Error = snap.Error.Error()
	}
	for _, m := range snap.Transcript {
		out.Transcript = append(out.Transcript, TranscriptEntry{Step: m.StepName, Content: m.Content, Failure: m.Kind.String()})
	}
	return out
}
