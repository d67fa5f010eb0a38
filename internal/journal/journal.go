// Package journal keeps an append-only audit trail of applied engine
// operations in Postgres. The engine itself never reads it; it exists
// for reconciliation and support.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journal writes one row per applied operation.
type Journal struct {
	db *sql.DB
}

// Record is one audit row.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Operation string          `json:"operation"`
	Caller    string          `json:"caller"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the audit table if it does not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS operations (
			id         UUID PRIMARY KEY,
			operation  TEXT NOT NULL,
			caller     TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create operations table: %w", err)
	}
	return nil
}

// Append records one applied operation. A nil journal is a no-op so the
// service can run without a database.
func (j *Journal) Append(ctx context.Context, operation, caller string, payload interface{}) error {
	if j == nil || j.db == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO operations (id, operation, caller, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), operation, caller, raw, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

// Recent returns the latest rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, operation, caller, payload, created_at
		 FROM operations ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Operation, &r.Caller, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
