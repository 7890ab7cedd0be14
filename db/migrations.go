package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Migration represents a database migration. Up and Down may hold several
// statements separated by semicolons.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// migrations is written in the subset of SQL shared by PostgreSQL and SQLite
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_catalog_snapshots",
		Up: `
			CREATE TABLE IF NOT EXISTS catalog_snapshots (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMP NOT NULL,
				anime_count INTEGER NOT NULL DEFAULT 0,
				episode_count INTEGER NOT NULL DEFAULT 0,
				genre_count INTEGER NOT NULL DEFAULT 0,
				schedule_count INTEGER NOT NULL DEFAULT 0,
				featured_count INTEGER NOT NULL DEFAULT 0,
				data TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_catalog_snapshots_created_at ON catalog_snapshots(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_catalog_snapshots_created_at;
			DROP TABLE IF EXISTS catalog_snapshots;
		`,
	},
	{
		Version: 2,
		Name:    "add_snapshot_label",
		Up:      `ALTER TABLE catalog_snapshots ADD COLUMN label TEXT NOT NULL DEFAULT ''`,
		Down:    `ALTER TABLE catalog_snapshots DROP COLUMN label`,
	},
}

// Migrate runs all pending migrations
func Migrate(db *sql.DB, driver string) error {
	logger := slog.Default()

	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration", "driver", driver, "version", m.Version, "name", m.Name)
		if err := runMigration(db, driver, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

func runMigration(db *sql.DB, driver string, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execScript(tx, m.Up); err != nil {
		return err
	}

	if _, err := tx.Exec(rebind(driver, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)"), m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback rolls back the last migration
func Rollback(db *sql.DB, driver string) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}

	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execScript(tx, target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if _, err := tx.Exec(rebind(driver, "DELETE FROM schema_migrations WHERE version = ?"), currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB) ([]MigrationStatus, error) {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}

	sort.Slice(status, func(i, j int) bool {
		return status[i].Version < status[j].Version
	})

	return status, nil
}

// execScript runs each statement of script in order. Statements must not
// contain semicolons inside literals.
func execScript(tx *sql.Tx, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
