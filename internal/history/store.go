// Package history persists finished generation runs so past output and
// failure detail stay queryable after the process exits.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docforge/internal/coordinator"
	"docforge/internal/graph"
	"docforge/internal/pool"
	_ "modernc.org/sqlite"
)

// RunRecord is the stored header of one run.
type RunRecord struct {
	ID          string
	Status      string
	Requested   []graph.ArtifactType
	Assumptions string
	Elapsed     time.Duration
	CreatedAt   time.Time
}

// ArtifactRecord is one artifact's stored outcome within a run.
type ArtifactRecord struct {
	Type       graph.ArtifactType
	Status     string
	SkipReason string
	Backend    string
	Attempts   int
	Elapsed    time.Duration
	Content    string
	Error      string
}

// RunDetail is a run header with its artifacts and cross references.
type RunDetail struct {
	RunRecord
	Artifacts       []ArtifactRecord
	CrossReferences []pool.CrossReference
}

// Store defines the persistence interface for run history.
type Store interface {
	SaveRun(ctx context.Context, req coordinator.Request, res *coordinator.Result) error
	GetRun(ctx context.Context, runID string) (*RunDetail, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openStore(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// A shared cache lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return openStore(ctx, "file::memory:?mode=memory&cache=shared")
}

func openStore(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the connection string.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for subqueries.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
