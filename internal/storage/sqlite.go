package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	alerts    *sqliteAlertRepo
	rules     *sqliteRuleRepo
	onCalls   *sqliteOnCallRepo
	groups    *sqliteGroupRepo
	blackouts *sqliteBlackoutRepo
}

// NewSQLiteStorage creates a new SQLite storage for the given database path.
// Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	locks := NewKeyedLock()
	s.alerts = &sqliteAlertRepo{db: db, locks: locks}
	s.rules = &sqliteRuleRepo{db: db}
	s.onCalls = &sqliteOnCallRepo{db: db}
	s.groups = &sqliteGroupRepo{db: db}
	s.blackouts = &sqliteBlackoutRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Alerts returns the alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// Rules returns the rule repository.
func (s *SQLiteStorage) Rules() RuleRepository {
	return s.rules
}

// OnCalls returns the on-call repository.
func (s *SQLiteStorage) OnCalls() OnCallRepository {
	return s.onCalls
}

// Groups returns the group membership repository.
func (s *SQLiteStorage) Groups() GroupRepository {
	return s.groups
}

// Blackouts returns the blackout repository.
func (s *SQLiteStorage) Blackouts() BlackoutRepository {
	return s.blackouts
}
