package dataquery

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"slackagent/pkg/config"
	"slackagent/pkg/logx"
	"slackagent/pkg/workflow"
)

// ErrWriteRejected is returned for non-read statements when writes are off.
var ErrWriteRejected = errors.New("only SELECT queries are allowed")

// Store implements workflow.Executor on a database/sql pool. The pool is
// shared by all requests.
type Store struct {
	db          *sql.DB
	maxRows     int
	allowWrites bool
	timeout     time.Duration
	logger      *logx.Logger
}

// Open connects to the configured data store.
func Open(cfg config.DataConfig) (*Store, error) {
	if cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported data driver %q", cfg.Driver)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping data store: %w", err)
	}
	return NewStore(db, cfg), nil
}

// NewStore wraps an existing pool.
func NewStore(db *sql.DB, cfg config.DataConfig) *Store {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}
	return &Store{
		db:          db,
		maxRows:     maxRows,
		allowWrites: cfg.AllowWrites,
		timeout:     cfg.QueryTimeout,
		logger:      logx.NewLogger("datastore"),
	}
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for callers that share it.
func (s *Store) DB() *sql.DB { return s.db }

// Schema lists the CREATE statements of user tables.
func (s *Store) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan schema: %w", err)
		}
		stmts = append(stmts, stmt+";")
	}
	return strings.Join(stmts, "\n"), rows.Err()
}

// Execute implements workflow.Executor. It never retries.
func (s *Store) Execute(ctx context.Context, q workflow.ApprovedSQL) (workflow.QueryResult, error) {
	if q.IsZero() {
		return workflow.QueryResult{}, workflow.ErrNotApproved
	}
	return s.run(ctx, q.SQL())
}

func (s *Store) run(ctx context.Context, query string) (workflow.QueryResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if !IsReadOnly(query) {
		if !s.allowWrites {
			return workflow.QueryResult{}, ErrWriteRejected
		}
		res, err := s.db.ExecContext(ctx, query)
		if err != nil {
			return workflow.QueryResult{}, fmt.Errorf("exec: %w", err)
		}
		n, _ := res.RowsAffected()
		return workflow.QueryResult{
			Columns: []string{"rows_affected"},
			Rows:    []map[string]any{{"rows_affected": n}},
		}, nil
	}

	return s.read(ctx, query)
}

// read runs query on a pinned connection with query_only set, so nothing
// it does can modify the data store.
func (s *Store) read(ctx context.Context, query string) (workflow.QueryResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return workflow.QueryResult{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return workflow.QueryResult{}, fmt.Errorf("enter read-only mode: %w", err)
	}
	defer s.leaveReadOnly(conn)
	return s.query(ctx, conn, query)
}

// leaveReadOnly resets query_only before conn goes back to the pool. A
// connection that cannot be reset is discarded.
func (s *Store) leaveReadOnly(conn *sql.Conn) {
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = OFF"); err != nil {
		s.logger.Warn("⚠️ Discarding connection stuck in read-only mode: %v", err)
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

func (s *Store) query(ctx context.Context, conn *sql.Conn, query string) (workflow.QueryResult, error) {
	start := time.Now()
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return workflow.QueryResult{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return workflow.QueryResult{}, fmt.Errorf("columns: %w", err)
	}
	result := workflow.QueryResult{Columns: cols}
	for rows.Next() {
		if len(result.Rows) == s.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return workflow.QueryResult{}, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return workflow.QueryResult{}, fmt.Errorf("iterate rows: %w", err)
	}
	s.logger.Info("📊 Query returned %d rows in %s", len(result.Rows), time.Since(start).Round(time.Millisecond))
	return result, nil
}

var _ workflow.Executor = (*Store)(nil)
