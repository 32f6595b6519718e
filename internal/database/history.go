package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StatusHistory archives every status record the watcher writes, so poll
// activity survives the single-record overwrite semantics of the status file.
type StatusHistory struct {
	db *DB
}

func NewStatusHistory(db *DB) *StatusHistory {
	return &StatusHistory{db: db}
}

// EnsureSchema creates the history table and its index if they do not exist
// yet. Both statements run in one transaction.
func (r *StatusHistory) EnsureSchema(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS status_history (
				id UUID PRIMARY KEY,
				product_id TEXT NOT NULL,
				product_name TEXT NOT NULL DEFAULT '',
				product_url TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				action_needed BOOLEAN NOT NULL DEFAULT FALSE,
				query_count INT NOT NULL DEFAULT 0,
				details JSONB NOT NULL DEFAULT '{}',
				recorded_at TIMESTAMPTZ NOT NULL
			)`); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			CREATE INDEX IF NOT EXISTS idx_status_history_product
			ON status_history (product_id, recorded_at DESC)`); err != nil {
			return fmt.Errorf("failed to ensure index: %w", err)
		}
		return nil
	})
}

func (r *StatusHistory) Insert(ctx context.Context, rec *status.Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO status_history (
			id, product_id, product_name, product_url, location,
			status, action_needed, query_count, details, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), rec.ProductID, rec.ProductName, rec.ProductURL, rec.Location,
		string(rec.Status), rec.ActionNeeded, rec.QueryCount, details, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// Latest returns the most recent record for a product, or nil when the
// archive has none.
func (r *StatusHistory) Latest(ctx context.Context, productID string) (*status.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT product_id, product_name, product_url, location,
		       status, action_needed, query_count, details, recorded_at
		FROM status_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`, productID)

	var rec status.Record
	var st string
	var details []byte
	if err := row.Scan(&rec.ProductID, &rec.ProductName, &rec.ProductURL, &rec.Location,
		&st, &rec.ActionNeeded, &rec.QueryCount, &details, &rec.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest record: %w", err)
	}
	rec.Status = status.Status(st)
	if err := json.Unmarshal(details, &rec.Details); err != nil {
		rec.Details = map[string]any{}
	}
	return &rec, nil
}

// Recent returns the latest records for a product, newest first.
func (r *StatusHistory) Recent(ctx context.Context, productID string, limit int) ([]*status.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_id, product_name, product_url, location,
		       status, action_needed, query_count, details, recorded_at
		FROM status_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*status.Record
	for rows.Next() {
		var rec status.Record
		var st string
		var details []byte
		if err := rows.Scan(&rec.ProductID, &rec.ProductName, &rec.ProductURL, &rec.Location,
			&st, &rec.ActionNeeded, &rec.QueryCount, &details, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Status = status.Status(st)
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			rec.Details = map[string]any{}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountByStatus aggregates how often each status was recorded for a product.
func (r *StatusHistory) CountByStatus(ctx context.Context, productID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM status_history
		WHERE product_id = $1
		GROUP BY status`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}
