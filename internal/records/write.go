package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stemsplit/internal/batch"
)

// BeginBatch records the start of a batch.
func (s *Store) BeginBatch(ctx context.Context, batchID, source string, itemCount int, started time.Time) error {
	err := s.exec(ctx,
		`INSERT INTO batches (id, source, started_at, item_count) VALUES (?, ?, ?, ?)`,
		batchID, source, formatTime(started), itemCount,
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", batchID, err)
	}
	return nil
}

// RecordEntry stores one item outcome and its deliveries.
func (s *Store) RecordEntry(ctx context.Context, batchID string, entry batch.Entry) error {
	outcome := entry.Outcome
	outputs, err := json.Marshal(outcome.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if outcome.Outputs == nil {
		outputs = []byte("[]")
	}
	errMessage := ""
	if outcome.Err != nil {
		errMessage = outcome.Err.Error()
	}
	degraded := 0
	if outcome.Transcript != nil && outcome.Transcript.Degraded {
		degraded = 1
	}

	itemID := uuid.NewString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO items (
			id, batch_id, seq, name, input_path, status, failed_stage, error_kind, error_message,
			remediation, output_dir, outputs_json, transcript_degraded, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			itemID, batchID, entry.Item.Seq, entry.Item.Name, entry.Item.Path, string(outcome.Status),
			outcome.FailedStage, errorKind(outcome), errMessage, string(outcome.Remediation()),
			outcome.OutputDir, string(outputs), degraded, formatTime(entry.Started), formatTime(entry.Finished),
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", entry.Item.Name, err)
		}
		for _, d := range outcome.Deliveries {
			lastErr := ""
			if d.LastErr != nil {
				lastErr = d.LastErr.Error()
			}
			_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO deliveries (
				id, item_id, destination, local_path, attempts, state, last_error
			) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				uuid.NewString(), itemID, d.Destination, d.LocalPath, d.Attempts, d.State, lastErr,
			)
			if err != nil {
				return fmt.Errorf("insert delivery %s: %w", d.Destination, err)
			}
		}
		return nil
	})
}

// FinishBatch stores the final counts of a batch.
func (s *Store) FinishBatch(ctx context.Context, report *batch.Report) error {
	summary := report.Summary()
	err := s.exec(ctx,
		`UPDATE batches SET finished_at = ?, item_count = ?, succeeded = ?, failed = ?, needs_upload = ?, bundle_path = ?
		 WHERE id = ?`,
		formatTime(report.Finished()), summary.Total, summary.Succeeded, summary.Failed, summary.NeedsUpload,
		report.Bundle(), report.BatchID(),
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", report.BatchID(), err)
	}
	return nil
}

// SaveReport writes a complete report in one go.
func (s *Store) SaveReport(ctx context.Context, report *batch.Report) error {
	entries := report.Entries()
	if err := s.BeginBatch(ctx, report.BatchID(), report.Source(), len(entries), report.Started()); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.RecordEntry(ctx, report.BatchID(), entry); err != nil {
			return err
		}
	}
	return s.FinishBatch(ctx, report)
}

func errorKind(outcome batch.Outcome) string {
	if outcome.Err == nil {
		return ""
	}
	return string(outcome.ErrorKind())
}
