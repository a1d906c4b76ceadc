package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert records, one row per identity key
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				resource TEXT NOT NULL,
				event TEXT NOT NULL,
				environment TEXT NOT NULL,
				severity TEXT NOT NULL,
				correlate_json TEXT NOT NULL DEFAULT '[]',
				status TEXT NOT NULL,
				service_json TEXT NOT NULL DEFAULT '[]',
				grp TEXT NOT NULL DEFAULT 'Misc',
				value TEXT,
				text TEXT,
				tags_json TEXT NOT NULL DEFAULT '[]',
				attributes_json TEXT NOT NULL DEFAULT '{}',
				origin TEXT,
				event_type TEXT NOT NULL,
				create_time DATETIME NOT NULL,
				timeout INTEGER NOT NULL,
				raw_data TEXT,
				customer TEXT,
				duplicate_count INTEGER NOT NULL DEFAULT 0,
				repeat INTEGER NOT NULL DEFAULT 0,
				previous_severity TEXT,
				trend_indication TEXT,
				receive_time DATETIME NOT NULL,
				last_receive_id TEXT,
				last_receive_time DATETIME NOT NULL,
				UNIQUE (environment, resource, event)
			);
			CREATE INDEX IF NOT EXISTS idx_alerts_identity
				ON alerts(environment, resource);
			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

			-- Append-only history log, owned by the alert aggregate
			CREATE TABLE IF NOT EXISTS alert_history (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				alert_id TEXT NOT NULL,
				id TEXT NOT NULL,
				event TEXT NOT NULL,
				severity TEXT,
				status TEXT,
				value TEXT,
				text TEXT,
				change_type TEXT NOT NULL,
				update_time DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id);

			-- Notification rules
			CREATE TABLE IF NOT EXISTS notification_rules (
				id TEXT PRIMARY KEY,
				active INTEGER NOT NULL DEFAULT 1,
				environment TEXT NOT NULL,
				resource TEXT,
				event TEXT,
				grp TEXT,
				service_json TEXT NOT NULL DEFAULT '[]',
				tags_json TEXT NOT NULL DEFAULT '[]',
				severity_json TEXT NOT NULL DEFAULT '[]',
				advanced_severity_json TEXT NOT NULL DEFAULT '[]',
				use_advanced_severity INTEGER NOT NULL DEFAULT 0,
				customer TEXT,
				days_json TEXT NOT NULL DEFAULT '[]',
				start_time TEXT,
				end_time TEXT,
				user TEXT,
				create_time DATETIME NOT NULL,
				channel_id TEXT NOT NULL,
				receivers_json TEXT NOT NULL DEFAULT '[]',
				user_ids_json TEXT NOT NULL DEFAULT '[]',
				group_ids_json TEXT NOT NULL DEFAULT '[]',
				use_oncall INTEGER NOT NULL DEFAULT 0,
				text TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_notification_rules_env
				ON notification_rules(environment);

			-- Escalation rules
			CREATE TABLE IF NOT EXISTS escalation_rules (
				id TEXT PRIMARY KEY,
				active INTEGER NOT NULL DEFAULT 1,
				environment TEXT NOT NULL,
				resource TEXT,
				event TEXT,
				grp TEXT,
				service_json TEXT NOT NULL DEFAULT '[]',
				tags_json TEXT NOT NULL DEFAULT '[]',
				severity_json TEXT NOT NULL DEFAULT '[]',
				advanced_severity_json TEXT NOT NULL DEFAULT '[]',
				use_advanced_severity INTEGER NOT NULL DEFAULT 0,
				customer TEXT,
				days_json TEXT NOT NULL DEFAULT '[]',
				start_time TEXT,
				end_time TEXT,
				user TEXT,
				create_time DATETIME NOT NULL,
				time_seconds INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_escalation_rules_env
				ON escalation_rules(environment);

			-- On-call schedules
			CREATE TABLE IF NOT EXISTS on_calls (
				id TEXT PRIMARY KEY,
				user_ids_json TEXT NOT NULL DEFAULT '[]',
				group_ids_json TEXT NOT NULL DEFAULT '[]',
				start_date TEXT,
				end_date TEXT,
				start_time TEXT,
				end_time TEXT,
				repeat_type TEXT,
				repeat_days_json TEXT NOT NULL DEFAULT '[]',
				repeat_weeks_json TEXT NOT NULL DEFAULT '[]',
				repeat_months_json TEXT NOT NULL DEFAULT '[]',
				customer TEXT,
				user TEXT,
				create_time DATETIME NOT NULL
			);

			-- Group membership consumed by the on-call resolver
			CREATE TABLE IF NOT EXISTS group_members (
				group_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				name TEXT,
				email TEXT,
				country_code TEXT,
				phone_number TEXT,
				PRIMARY KEY (group_id, user_id)
			);

			-- Suppression windows
			CREATE TABLE IF NOT EXISTS blackouts (
				id TEXT PRIMARY KEY,
				environment TEXT NOT NULL,
				resource TEXT,
				event TEXT,
				grp TEXT,
				service_json TEXT NOT NULL DEFAULT '[]',
				tags_json TEXT NOT NULL DEFAULT '[]',
				customer TEXT,
				start_time DATETIME NOT NULL,
				end_time DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_blackouts_window
				ON blackouts(start_time, end_time);
		`,
	},
}

// runMigrations applies all pending migrations to the database.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, sqlTime(time.Now()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
