package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docforge/internal/coordinator"
	"docforge/internal/graph"
	"docforge/internal/pool"
)

// SaveRun saves a finished run with its artifact outcomes and cross
// references. Uses ON CONFLICT so re-saving the same run is idempotent.
func (s *SQLiteStore) SaveRun(ctx context.Context, req coordinator.Request, res *coordinator.Result) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	requested := make([]string, 0, len(req.Types))
	for _, t := range req.Types {
		requested = append(requested, string(t))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, status, requested, assumptions, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			requested = excluded.requested,
			assumptions = excluded.assumptions,
			elapsed_ms = excluded.elapsed_ms
	`, res.RunID, res.Status.String(), strings.Join(requested, ","), req.Assumptions, res.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	for t, out := range res.Outcomes {
		var backend, content, errStr string
		var attempts int
		var elapsedMS int64
		if out.Result != nil {
			backend = out.Result.Backend
			content = out.Result.Content
			attempts = out.Result.Attempts
			elapsedMS = out.Result.Elapsed.Milliseconds()
		}
		if out.Err != nil {
			errStr = out.Err.Error()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_artifacts (run_id, type, status, skip_reason, backend, attempts, elapsed_ms, content, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, type) DO UPDATE SET
				status = excluded.status,
				skip_reason = excluded.skip_reason,
				backend = excluded.backend,
				attempts = excluded.attempts,
				elapsed_ms = excluded.elapsed_ms,
				content = excluded.content,
				error = excluded.error
		`, res.RunID, string(t), out.Status.String(), out.SkipReason, backend, attempts, elapsedMS, content, errStr)
		if err != nil {
			return fmt.Errorf("failed to upsert artifact %s: %w", t, err)
		}
	}

	for _, ref := range res.CrossReferences {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cross_references (run_id, from_type, to_type)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, from_type, to_type) DO NOTHING
		`, res.RunID, string(ref.From), string(ref.To))
		if err != nil {
			return fmt.Errorf("failed to insert cross reference %s -> %s: %w", ref.From, ref.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID, including artifacts and cross references.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	detail := &RunDetail{}
	var requested string
	var runElapsedMS int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, requested, assumptions, elapsed_ms, created_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&detail.ID, &detail.Status, &requested, &detail.Assumptions, &runElapsedMS, &detail.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	detail.Requested = splitTypes(requested)
	detail.Elapsed = millisDuration(runElapsedMS)

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, status, skip_reason, backend, attempts, elapsed_ms, content, error
		FROM run_artifacts
		WHERE run_id = ?
		ORDER BY type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a ArtifactRecord
		var typ string
		var elapsedMS int64
		if err := rows.Scan(&typ, &a.Status, &a.SkipReason, &a.Backend, &a.Attempts, &elapsedMS, &a.Content, &a.Error); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Type = graph.ArtifactType(typ)
		a.Elapsed = millisDuration(elapsedMS)
		detail.Artifacts = append(detail.Artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	refRows, err := s.db.QueryContext(ctx, `
		SELECT from_type, to_type
		FROM cross_references
		WHERE run_id = ?
		ORDER BY from_type, to_type
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cross references: %w", err)
	}
	defer refRows.Close()

	for refRows.Next() {
		var from, to string
		if err := refRows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan cross reference: %w", err)
		}
		detail.CrossReferences = append(detail.CrossReferences, pool.CrossReference{
			From: graph.ArtifactType(from),
			To:   graph.ArtifactType(to),
		})
	}
	if err := refRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cross references: %w", err)
	}

	return detail, nil
}

// ListRuns returns run headers, newest first. A non-positive limit returns
// all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, status, requested, assumptions, elapsed_ms, created_at
		FROM runs
		ORDER BY created_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var requested string
		var elapsedMS int64
		if err := rows.Scan(&rec.ID, &rec.Status, &requested, &rec.Assumptions, &elapsedMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Requested = splitTypes(requested)
		rec.Elapsed = millisDuration(elapsedMS)
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func millisDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func splitTypes(joined string) []graph.ArtifactType {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]graph.ArtifactType, 0, len(parts))
	for _, p := range parts {
		out = append(out, graph.ArtifactType(p))
	}
	return out
}
