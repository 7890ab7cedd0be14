// Package db persists assembled catalog snapshots in PostgreSQL or SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docutag/animescraper/models"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNoSnapshot is returned when a requested snapshot does not exist
var ErrNoSnapshot = errors.New("snapshot not found")

// DB wraps the database connection and provides data access methods
type DB struct {
	conn   *sql.DB
	driver string
}

// Config contains database configuration
type Config struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `yaml:"dsn"`
}

// DefaultConfig returns a SQLite database in the working directory
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		DSN:    "animescraper.db",
	}
}

// Snapshot is one persisted catalog. Catalog is nil in listings.
type Snapshot struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Label     string          `json:"label,omitempty"`
	Counts    models.Counts   `json:"counts"`
	Catalog   *models.Catalog `json:"catalog,omitempty"`
}

// New creates a new database connection and applies pending migrations
func New(config Config) (*DB, error) {
	if config.Driver == "" {
		config.Driver = DriverSQLite
	}
	if config.Driver != DriverPostgres && config.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	conn, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// SQLite allows a single writer.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(conn, config.Driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn, driver: config.Driver}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Driver returns the driver name the connection was opened with
func (db *DB) Driver() string {
	return db.driver
}

// SaveSnapshot stores catalog under a fresh ID
func (db *DB) SaveSnapshot(ctx context.Context, catalog *models.Catalog, label string) (*Snapshot, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	data, err := json.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}

	snap := &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Label:     label,
		Counts:    catalog.Counts(),
		Catalog:   catalog,
	}

	query := db.rebind(`
		INSERT INTO catalog_snapshots
			(id, created_at, label, anime_count, episode_count, genre_count, schedule_count, featured_count, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = db.conn.ExecContext(ctx, query,
		snap.ID, snap.CreatedAt, snap.Label,
		snap.Counts.Anime, snap.Counts.Episodes, snap.Counts.Genres, snap.Counts.Schedule, snap.Counts.Featured,
		string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return snap, nil
}

// GetSnapshot retrieves a snapshot with its catalog
func (db *DB) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	query := db.rebind(`
		SELECT id, created_at, label, anime_count, episode_count, genre_count, schedule_count, featured_count, data
		FROM catalog_snapshots WHERE id = ?
	`)
	return db.scanFull(db.conn.QueryRowContext(ctx, query, id))
}

// LatestSnapshot retrieves the most recently saved snapshot
func (db *DB) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT id, created_at, label, anime_count, episode_count, genre_count, schedule_count, featured_count, data
		FROM catalog_snapshots ORDER BY created_at DESC, id DESC LIMIT 1
	`
	return db.scanFull(db.conn.QueryRowContext(ctx, query))
}

// ListSnapshots returns snapshot summaries, newest first
func (db *DB) ListSnapshots(ctx context.Context, limit, offset int) ([]*Snapshot, error) {
	query := db.rebind(`
		SELECT id, created_at, label, anime_count, episode_count, genre_count, schedule_count, featured_count
		FROM catalog_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)

	rows, err := db.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	results := []*Snapshot{}
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.Label,
			&s.Counts.Anime, &s.Counts.Episodes, &s.Counts.Genres, &s.Counts.Schedule, &s.Counts.Featured); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, &s)
	}

	return results, rows.Err()
}

// DeleteSnapshot deletes a snapshot by ID
func (db *DB) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM catalog_snapshots WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoSnapshot
	}

	return nil
}

// Count returns the number of stored snapshots
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func (db *DB) scanFull(row *sql.Row) (*Snapshot, error) {
	var s Snapshot
	var data string
	err := row.Scan(&s.ID, &s.CreatedAt, &s.Label,
		&s.Counts.Anime, &s.Counts.Episodes, &s.Counts.Genres, &s.Counts.Schedule, &s.Counts.Featured, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var catalog models.Catalog
	if err := json.Unmarshal([]byte(data), &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	s.Catalog = &catalog

	return &s, nil
}

func (db *DB) rebind(query string) string {
	return rebind(db.driver, query)
}
