package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DeadLetter is an ingestion item that exhausted its retries and was
// routed aside for manual inspection instead of blocking the pipeline.
type DeadLetter struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// DeadLetterRepository stores failed ingestion items.
type DeadLetterRepository struct {
	db *sql.DB
}

// NewDeadLetterRepository creates a new DeadLetterRepository with the provided database connection.
func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Insert records a failed item with its payload and final error.
func (s *DeadLetterRepository) Insert(ctx context.Context, kind string, payload interface{}, itemErr error, attempts int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter payload: %w", err)
	}

	query := `
		INSERT INTO dead_letter (id, kind, payload, error, attempts)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, uuid.New().String(), kind, string(data), itemErr.Error(), attempts)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	return nil
}

// List retrieves all dead-lettered items, newest first.
func (s *DeadLetterRepository) List(ctx context.Context) ([]DeadLetter, error) {
	query := `
		SELECT id, kind, payload, error, attempts
		FROM dead_letter
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead_letter table: %w", err)
	}
	defer rows.Close()

	items := []DeadLetter{}
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.Kind, &d.Payload, &d.Error, &d.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan dead_letter results: %w", err)
		}
		items = append(items, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead_letter table: %w", err)
	}

	return items, nil
}
