// Package persistence stores run history and local tasks in SQLite. The
// schema is managed with golang-migrate from embedded migration files.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"slackagent/pkg/logx"
)

// Store owns the local database connection.
type Store struct {
	db     *sql.DB
	path   string
	logger *logx.Logger
}

// Open opens (creating if needed) the database at path and applies all
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	s, err := OpenWithoutMigrations(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx, TargetLatest); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// OpenWithoutMigrations opens the database and leaves the schema alone.
func OpenWithoutMigrations(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, logger: logx.NewLogger("persistence")}
	s.logger.Info("📦 Database opened: %s", path)
	return s, nil
}

// DB returns the underlying connection for stores sharing the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
