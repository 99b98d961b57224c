package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"

	"slackagent/pkg/logx"
)

// LatestMigrationVersion must be bumped with every new migration file.
const LatestMigrationVersion uint = 2

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrMigrationDowngrade is returned when the database is newer than this
// binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// MigrationTarget moves mig to the desired version.
type MigrationTarget func(mig *migrate.Migrate) error

var (
	// TargetLatest applies every pending up migration.
	TargetLatest MigrationTarget = func(mig *migrate.Migrate) error {
		return mig.Up()
	}

	// TargetVersion migrates up or down to version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate) error {
			return mig.Migrate(version)
		}
	}
)

type migrationLogger struct {
	logger *logx.Logger
}

func (m *migrationLogger) Printf(format string, v ...any) {
	m.logger.Debug(strings.TrimRight(format, "\n"), v...)
}

func (m *migrationLogger) Verbose() bool {
	return logx.IsDebugEnabled()
}

// Migrate applies the embedded migrations up to target.
func (s *Store) Migrate(_ context.Context, target MigrationTarget) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	source, err := httpfs.New(http.FS(migrationFiles), "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	// The driver shares s.db, so mig is never closed here.
	mig, err := migrate.NewWithInstance("migrations", source, "sqlite", driver)
	if err != nil {
		return err
	}
	mig.Log = &migrationLogger{logger: s.logger}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d, manual intervention required", version)
	}
	if version > LatestMigrationVersion {
		return fmt.Errorf("%w: db_version=%d latest_migration_version=%d",
			ErrMigrationDowngrade, version, LatestMigrationVersion)
	}

	if err := target(mig); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	after, _, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if after != version {
		s.logger.Info("📦 Schema migrated from version %d to %d", version, after)
	}
	return nil
}

// SchemaVersion reports the applied migration version, 0 when none.
func (s *Store) SchemaVersion(ctx context.Context) (uint, error) {
	var v uint
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") || errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}
