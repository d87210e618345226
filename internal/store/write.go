package store

import (
	"context"
	"fmt"
)

// BeginRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING so a retried begin is harmless.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	settings, err := marshalSettings(run.Settings)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, test, settings, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Mode,
		run.Test,
		settings,
		formatTime(run.StartedAt),
		OutcomeRunning,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordCollection stores the result of one collection. Recording the same
// (run, seq) twice keeps the latest values.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordCollection(ctx context.Context, c CollectionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_runs
		(run_id, seq, db, coll, dest_index, dest_type, docs, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			docs = excluded.docs,
			status = excluded.status
	`,
		c.RunID,
		c.Seq,
		c.DB,
		c.Collection,
		c.Index,
		c.Type,
		c.Docs,
		c.Status,
	)
	if err != nil {
		return fmt.Errorf("record collection %s.%s: %w", c.DB, c.Collection, err)
	}
	return nil
}

// FinishRun stores the outcome and finish time of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt == nil {
		return fmt.Errorf("finish run %s: missing finish time", run.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, outcome = ?, error = ?
		WHERE id = ?
	`,
		formatTime(*run.FinishedAt),
		run.Outcome,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}
