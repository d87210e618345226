package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `id, mode, test, settings, started_at, finished_at, outcome, error`

// ReadRun returns a run with its collections in processing order.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, db, coll, dest_index, dest_type, docs, status
		FROM collection_runs
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query collections of %s: %w", id, err)
	}
	defer rows.Close()

	run.Collections, err = scanCollections(rows)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CollectionHistory returns the most recent results of db.coll across
// runs, newest first.
func (s *Store) CollectionHistory(ctx context.Context, db, coll string, limit int) ([]CollectionRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, c.seq, c.db, c.coll, c.dest_index, c.dest_type, c.docs, c.status
		FROM collection_runs c
		JOIN runs r ON r.id = c.run_id
		WHERE c.db = ? AND c.coll = ?
		ORDER BY r.started_at DESC, c.run_id DESC
		LIMIT ?
	`, db, coll, limit)
	if err != nil {
		return nil, fmt.Errorf("query history of %s.%s: %w", db, coll, err)
	}
	defer rows.Close()
	return scanCollections(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		settings   string
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Mode, &run.Test, &settings, &startedAt, &finishedAt, &run.Outcome, &run.Error); err != nil {
		return Run{}, err
	}

	var err error
	if run.Settings, err = unmarshalSettings(settings); err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return Run{}, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}

func scanCollections(rows *sql.Rows) ([]CollectionRun, error) {
	out := []CollectionRun{}
	for rows.Next() {
		var c CollectionRun
		if err := rows.Scan(&c.RunID, &c.Seq, &c.DB, &c.Collection, &c.Index, &c.Type, &c.Docs, &c.Status); err != nil {
			return nil, fmt.Errorf("scan collection run: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection runs: %w", err)
	}
	return out, nil
}
