package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

// InstrumentRepository provides data access methods for the instrument table.
type InstrumentRepository struct {
	db *sql.DB
}

// NewInstrumentRepository creates a new InstrumentRepository with the provided database connection.
func NewInstrumentRepository(db *sql.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

// Insert registers a new instrument.
func (s *InstrumentRepository) Insert(ctx context.Context, i *model.Instrument) error {
	query := `
		INSERT INTO instrument (id, symbol, name, currency, asset_class, sector, delisted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var sector sql.NullString
	if i.Sector != "" {
		sector = sql.NullString{String: i.Sector, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query, i.ID, i.Symbol, i.Name, i.Currency, i.AssetClass, sector, i.Delisted)
	if err != nil {
		return fmt.Errorf("failed to insert instrument: %w", err)
	}
	return nil
}

// Get retrieves an instrument by ID. Returns
// apperrors.ErrInstrumentUnknown when no such instrument exists.
func (s *InstrumentRepository) Get(ctx context.Context, id string) (model.Instrument, error) {
	query := `
		SELECT id, symbol, name, currency, asset_class, sector, delisted
		FROM instrument
		WHERE id = ?
	`

	var i model.Instrument
	var sector sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&i.ID, &i.Symbol, &i.Name, &i.Currency, &i.AssetClass, &sector, &i.Delisted,
	)
	if err == sql.ErrNoRows {
		return model.Instrument{}, apperrors.ErrInstrumentUnknown
	}
	if err != nil {
		return model.Instrument{}, fmt.Errorf("failed to query instrument: %w", err)
	}
	if sector.Valid {
		i.Sector = sector.String
	}

	return i, nil
}

// List retrieves all instruments.
func (s *InstrumentRepository) List(ctx context.Context) ([]model.Instrument, error) {
	query := `
		SELECT id, symbol, name, currency, asset_class, sector, delisted
		FROM instrument
		ORDER BY symbol ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument table: %w", err)
	}
	defer rows.Close()

	instruments := []model.Instrument{}
	for rows.Next() {
		var i model.Instrument
		var sector sql.NullString

		if err := rows.Scan(&i.ID, &i.Symbol, &i.Name, &i.Currency, &i.AssetClass, &sector, &i.Delisted); err != nil {
			return nil, fmt.Errorf("failed to scan instrument results: %w", err)
		}
		if sector.Valid {
			i.Sector = sector.String
		}

		instruments = append(instruments, i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument table: %w", err)
	}

	return instruments, nil
}

// MarkDelisted flags an instrument as delisted. Delisted instruments
// accept no further price updates.
func (s *InstrumentRepository) MarkDelisted(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE instrument SET delisted = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark instrument delisted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delist update: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrInstrumentUnknown
	}
	return nil
}
