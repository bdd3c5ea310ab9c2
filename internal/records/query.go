package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BatchRecord is a stored batch summary.
type BatchRecord struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	Items       int       `json:"items"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	NeedsUpload int       `json:"needs_upload"`
	Bundle      string    `json:"bundle"`
}

// ItemRecord is a stored item outcome.
type ItemRecord struct {
	ID                 string           `json:"id"`
	Seq                int              `json:"seq"`
	Name               string           `json:"name"`
	InputPath          string           `json:"input_path"`
	Status             string           `json:"status"`
	FailedStage        string           `json:"failed_stage"`
	ErrorKind          string           `json:"error_kind"`
	ErrorMessage       string           `json:"error_message"`
	Remediation        string           `json:"remediation"`
	OutputDir          string           `json:"output_dir"`
	Outputs            []string         `json:"outputs"`
	TranscriptDegraded bool             `json:"transcript_degraded"`
	Started            time.Time        `json:"started"`
	Finished           time.Time        `json:"finished"`
	Deliveries         []DeliveryRecord `json:"deliveries"`
}

// DeliveryRecord is a stored publish outcome.
type DeliveryRecord struct {
	Destination string `json:"destination"`
	LocalPath   string `json:"local_path"`
	Attempts    int    `json:"attempts"`
	State       string `json:"state"`
	LastError   string `json:"last_error"`
}

const batchColumns = `id, source, started_at, COALESCE(finished_at, ''), item_count, succeeded, failed, needs_upload, bundle_path`

// ListBatches returns the most recent batches first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+batchColumns+` FROM batches ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetBatch loads a batch by id or unique id prefix, with its items in input order.
func (s *Store) GetBatch(ctx context.Context, idOrPrefix string) (BatchRecord, []ItemRecord, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return BatchRecord{}, nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+batchColumns+` FROM batches WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT 2`),
		len(idOrPrefix), idOrPrefix)
	if err != nil {
		return BatchRecord{}, nil, fmt.Errorf("find batch: %w", err)
	}
	var matches []BatchRecord
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return BatchRecord{}, nil, err
		}
		matches = append(matches, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return BatchRecord{}, nil, err
	}

	// An exact id sorts before longer ids sharing it as a prefix.
	switch {
	case len(matches) == 0:
		return BatchRecord{}, nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case len(matches) > 1 && matches[0].ID != idOrPrefix:
		return BatchRecord{}, nil, fmt.Errorf("batch id prefix %q is ambiguous", idOrPrefix)
	}
	batch := matches[0]

	items, err := s.items(ctx, batch.ID)
	if err != nil {
		return BatchRecord{}, nil, err
	}
	return batch, items, nil
}

func (s *Store) items(ctx context.Context, batchID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, seq, name, input_path, status, failed_stage,
		error_kind, error_message, remediation, output_dir, outputs_json, transcript_degraded, started_at, finished_at
		FROM items WHERE batch_id = ? ORDER BY seq, name`), batchID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var items []ItemRecord
	for rows.Next() {
		var (
			item              ItemRecord
			outputs           string
			degraded          int
			started, finished string
		)
		if err := rows.Scan(&item.ID, &item.Seq, &item.Name, &item.InputPath, &item.Status, &item.FailedStage,
			&item.ErrorKind, &item.ErrorMessage, &item.Remediation, &item.OutputDir, &outputs, &degraded,
			&started, &finished); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(outputs), &item.Outputs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode outputs for %s: %w", item.Name, err)
		}
		item.TranscriptDegraded = degraded != 0
		item.Started = parseTime(started)
		item.Finished = parseTime(finished)
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		deliveries, err := s.deliveries(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Deliveries = deliveries
	}
	return items, nil
}

func (s *Store) deliveries(ctx context.Context, itemID string) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT destination, local_path, attempts, state, last_error
		FROM deliveries WHERE item_id = ? ORDER BY destination`), itemID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	var out []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		if err := rows.Scan(&d.Destination, &d.LocalPath, &d.Attempts, &d.State, &d.LastError); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (BatchRecord, error) {
	var (
		rec               BatchRecord
		started, finished string
	)
	if err := row.Scan(&rec.ID, &rec.Source, &started, &finished, &rec.Items, &rec.Succeeded,
		&rec.Failed, &rec.NeedsUpload, &rec.Bundle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("scan batch: %w", err)
	}
	rec.Started = parseTime(started)
	rec.Finished = parseTime(finished)
	return rec, nil
}
