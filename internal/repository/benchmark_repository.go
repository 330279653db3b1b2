package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

// BenchmarkRepository stores the reference portfolios used by the
// attribution engine.
type BenchmarkRepository struct {
	db *sql.DB
}

// NewBenchmarkRepository creates a new BenchmarkRepository with the provided database connection.
func NewBenchmarkRepository(db *sql.DB) *BenchmarkRepository {
	return &BenchmarkRepository{db: db}
}

// Insert stores a benchmark and its segments.
func (s *BenchmarkRepository) Insert(ctx context.Context, b *model.Benchmark) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin benchmark transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "INSERT INTO benchmark (id, name) VALUES (?, ?)", b.ID, b.Name); err != nil {
		return fmt.Errorf("failed to insert benchmark: %w", err)
	}

	segmentInsert := `
		INSERT INTO benchmark_segment (id, benchmark_id, asset_class, sector, weight, period_return)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, seg := range b.Segments {
		var sector sql.NullString
		if seg.Sector != "" {
			sector = sql.NullString{String: seg.Sector, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, segmentInsert, uuid.New().String(), b.ID, seg.AssetClass, sector, seg.Weight, seg.Return); err != nil {
			return fmt.Errorf("failed to insert benchmark segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit benchmark: %w", err)
	}

	return nil
}

// Get retrieves a benchmark with its segments. Returns
// apperrors.ErrBenchmarkNotFound when no such benchmark exists.
func (s *BenchmarkRepository) Get(ctx context.Context, id string) (model.Benchmark, error) {
	var b model.Benchmark
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM benchmark WHERE id = ?", id).Scan(&b.ID, &b.Name)
	if err == sql.ErrNoRows {
		return model.Benchmark{}, apperrors.ErrBenchmarkNotFound
	}
	if err != nil {
		return model.Benchmark{}, fmt.Errorf("failed to query benchmark: %w", err)
	}

	query := `
		SELECT asset_class, sector, weight, period_return
		FROM benchmark_segment
		WHERE benchmark_id = ?
		ORDER BY asset_class ASC, sector ASC
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return model.Benchmark{}, fmt.Errorf("failed to query benchmark_segment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg model.BenchmarkSegment
		var sector sql.NullString

		if err := rows.Scan(&seg.AssetClass, &sector, &seg.Weight, &seg.Return); err != nil {
			return model.Benchmark{}, fmt.Errorf("failed to scan benchmark_segment results: %w", err)
		}
		if sector.Valid {
			seg.Sector = sector.String
		}

		b.Segments = append(b.Segments, seg)
	}

	if err := rows.Err(); err != nil {
		return model.Benchmark{}, fmt.Errorf("error iterating benchmark_segment: %w", err)
	}

	return b, nil
}
