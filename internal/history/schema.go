package history

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		requested TEXT NOT NULL,
		assumptions TEXT,
		elapsed_ms INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_artifacts (
		run_id TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		skip_reason TEXT,
		backend TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		content TEXT,
		error TEXT,
		PRIMARY KEY (run_id, type),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS cross_references (
		run_id TEXT NOT NULL,
		from_type TEXT NOT NULL,
		to_type TEXT NOT NULL,
		PRIMARY KEY (run_id, from_type, to_type),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_artifacts_run_id ON run_artifacts(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
