package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slackagent/pkg/workflow"
)

// SQLiteStore keeps tasks in the local tasks table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore uses db, which must carry the tasks table.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create implements Store. The returned link has the form task:<id>.
func (s *SQLiteStore) Create(ctx context.Context, rec workflow.TaskRecord) (string, string, error) {
	id := uuid.NewString()
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return "", "", err
	}
	var due any
	if !rec.DueDate.IsZero() {
		due = rec.DueDate.UTC().Format(time.RFC3339)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, steps, source_link, priority, due_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'open', ?)`,
		id, rec.Title, rec.Description, string(steps), rec.SourceLink, rec.Priority, due,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", "", fmt.Errorf("failed to insert task: %w", err)
	}
	return id, "task:" + id, nil
}

// Get loads a stored task.
func (s *SQLiteStore) Get(ctx context.Context, id string) (workflow.TaskRecord, error) {
	var (
		rec   workflow.TaskRecord
		steps string
		due   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, steps, source_link, priority, due_date
		FROM tasks WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Title, &rec.Description, &steps, &rec.SourceLink, &rec.Priority, &due)
	if err != nil {
		return workflow.TaskRecord{}, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
		return workflow.TaskRecord{}, fmt.Errorf("corrupt steps for task %s: %w", id, err)
	}
	if due.Valid {
		rec.DueDate, _ = time.Parse(time.RFC3339, due.String)
	}
	rec.URL = "task:" + rec.ID
	return rec, nil
}
