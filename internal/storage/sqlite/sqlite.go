package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"moodatlas/internal/storage"
)

func init() {
	storage.RegisterFactory("sqlite", New)
}

type SQLiteStorage struct {
	conn            *sql.DB
	posts           storage.PostStore
	classifications storage.ClassificationStore
	aggregates      storage.AggregateStore
}

func New(dbPath string) (storage.StorageInterface, error) {
	slog.Info("Initializing SQLite storage", "path", dbPath)

	dbPath = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Storage initialized successfully")

	return &SQLiteStorage{
		conn:            conn,
		posts:           newPostStore(conn),
		classifications: newClassificationStore(conn),
		aggregates:      newAggregateStore(conn),
	}, nil
}

func runMigrations(conn *sql.DB) error {
	slog.Debug("Running database migrations")

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationsDir := filepath.Join("db", "migrations")
	if _, err := os.Stat(migrationsDir); err != nil {
		if os.IsNotExist(err) {
			slog.Debug("Migrations directory not found, applying built-in schema", "path", migrationsDir)
			return applySchema(conn)
		}
		return fmt.Errorf("failed to access migrations directory: %w", err)
	}

	if err := goose.Up(conn, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

// applySchema mirrors the initial migration so tests and ad-hoc runs work
// from any working directory.
func applySchema(conn *sql.DB) error {
	_, err := conn.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    country TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    source_created_at TIMESTAMP NOT NULL,
    fetched_at TIMESTAMP NOT NULL,
    stage TEXT NOT NULL DEFAULT 'fetched'
);
CREATE INDEX IF NOT EXISTS idx_posts_country ON posts(country);
CREATE INDEX IF NOT EXISTS idx_posts_fetched_at ON posts(fetched_at);

CREATE TABLE IF NOT EXISTS classifications (
    post_id TEXT PRIMARY KEY,
    country TEXT NOT NULL,
    emotion TEXT NOT NULL,
    confidence REAL NOT NULL,
    is_collective INTEGER NOT NULL DEFAULT 0,
    detected_countries TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_classifications_country ON classifications(country);

CREATE TABLE IF NOT EXISTS country_emotions (
    country TEXT PRIMARY KEY,
    distribution TEXT NOT NULL,
    weighted_scores TEXT NOT NULL,
    dominant_emotion TEXT NOT NULL,
    confidence REAL NOT NULL,
    total_posts INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMP NOT NULL
);
`

func (s *SQLiteStorage) GetConnection() *sql.DB {
	return s.conn
}

func (s *SQLiteStorage) Posts() storage.PostStore {
	return s.posts
}

func (s *SQLiteStorage) Classifications() storage.ClassificationStore {
	return s.classifications
}

func (s *SQLiteStorage) Aggregates() storage.AggregateStore {
	return s.aggregates
}

func (s *SQLiteStorage) Close(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
