package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slackagent/pkg/workflow"
)

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one finished request.
type Run struct {
	Snapshot       workflow.Snapshot
	Route          string
	ReplyDelivered bool
	StartedAt      time.Time
	Duration       time.Duration
}

// RunSummary is a row of the run history listing.
type RunSummary struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"`
	Route     string        `json:"route"`
	ErrorKind string        `json:"error_kind,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SaveRun writes run and its transcript in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	snap := run.Snapshot
	path, err := json.Marshal(snap.Path)
	if err != nil {
		return err
	}

	var reason, taskURL, errKind, errMsg string
	route := run.Route
	if snap.Route != nil {
		reason = snap.Route.Reason
		if route == "" {
			route = snap.Route.Label()
		}
	}
	if snap.TaskRecord != nil {
		taskURL = snap.TaskRecord.URL
	}
	if snap.Error != nil {
		errKind, errMsg = snap.Error.Kind.String(), snap.Error.Message
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, query, user_id, channel_id, route, route_reason, generated_sql,
			confirmation, task_url, final_response, error_kind, error_message, path,
			reply_delivered, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Query, nullable(snap.UserID), nullable(snap.ChannelID), route, nullable(reason),
		nullable(snap.GeneratedSQL), snap.Confirmation, nullable(taskURL), snap.FinalResponse,
		nullable(errKind), nullable(errMsg), string(path), run.ReplyDelivered,
		run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", snap.ID, err)
	}

	for i, m := range snap.Transcript {
		var kind any
		if m.Kind != workflow.ErrorKindNone {
			kind = m.Kind.String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_steps (run_id, seq, step_name, content, error_kind) VALUES (?, ?, ?, ?, ?)`,
			snap.ID, i, m.StepName, m.Content, kind); err != nil {
			return fmt.Errorf("failed to insert step %d of run %s: %w", i, snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", snap.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, route, error_kind, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			errKind sql.NullString
			started string
			ms      int64
		)
		if err := rows.Scan(&r.ID, &r.Query, &r.Route, &errKind, &started, &ms); err != nil {
			return nil, err
		}
		r.ErrorKind = errKind.String
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads a run with its transcript. Only the fields stored in the runs
// table are restored into the snapshot.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run                                Run
		userID, channelID, reason, sqlText sql.NullString
		taskURL, errKind, errMsg           sql.NullString
		path, started                      string
		ms                                 int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, query, user_id, channel_id, route, route_reason, generated_sql, confirmation,
			task_url, final_response, error_kind, error_message, path, reply_delivered,
			started_at, duration_ms
		FROM runs WHERE id = ?`, id).Scan(
		&run.Snapshot.ID, &run.Snapshot.Query, &userID, &channelID, &run.Route, &reason, &sqlText,
		&run.Snapshot.Confirmation, &taskURL, &run.Snapshot.FinalResponse, &errKind, &errMsg, &path,
		&run.ReplyDelivered, &started, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	snap := &run.Snapshot
	snap.UserID, snap.ChannelID, snap.GeneratedSQL = userID.String, channelID.String, sqlText.String
	if reason.Valid {
		snap.Route = &workflow.RouteDecision{Reason: reason.String}
	}
	if taskURL.Valid {
		snap.TaskRecord = &workflow.TaskRecord{URL: taskURL.String}
	}
	if errKind.Valid {
		info := workflow.ErrorInfo{Message: errMsg.String}
		_ = info.Kind.UnmarshalText([]byte(errKind.String))
		snap.Error = &info
	}
	if err := json.Unmarshal([]byte(path), &snap.Path); err != nil {
		return nil, fmt.Errorf("corrupt path for run %s: %w", id, err)
	}
	run.StartedAt, _ = time.Parse(timeLayout, started)
	run.Duration = time.Duration(ms) * time.Millisecond

	rows, err := s.db.QueryContext(ctx,
		`SELECT step_name, content, error_kind FROM run_steps WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for run %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m    workflow.StepMessage
			kind sql.NullString
		)
		if err := rows.Scan(&m.StepName, &m.Content, &kind); err != nil {
			return nil, err
		}
		if kind.Valid {
			_ = m.Kind.UnmarshalText([]byte(kind.String))
		}
		snap.Transcript = append(snap.Transcript, m)
	}
	return &run, rows.Err()
}
