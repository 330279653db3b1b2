package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openfolio/engine/internal/model"
)

// PriceRepository stores instrument prices and FX rates and answers
// as-of lookups: the latest observation at or before a requested time,
// never a future one.
type PriceRepository struct {
	db *sql.DB
}

// NewPriceRepository creates a new PriceRepository with the provided database connection.
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// AppendPrice records a price observation. Re-appending the same
// (instrument, date) is a no-op.
func (s *PriceRepository) AppendPrice(ctx context.Context, p model.PricePoint) error {
	query := `
		INSERT OR IGNORE INTO instrument_price (id, instrument_id, date, price)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, uuid.New().String(), p.InstrumentID, p.Date.Format("2006-01-02"), p.Price)
	if err != nil {
		return fmt.Errorf("failed to insert price: %w", err)
	}
	return nil
}

// GetPriceAsOf returns the most recent price at or before ts for an
// instrument. The quote is flagged stale when the observation is older
// than the requested date. Returns found=false when no price at or
// before ts exists.
func (s *PriceRepository) GetPriceAsOf(ctx context.Context, instrumentID string, ts time.Time) (model.Quote, bool, error) {
	query := `
		SELECT date, price
		FROM instrument_price
		WHERE instrument_id = ?
		AND date <= ?
		ORDER BY date DESC
		LIMIT 1
	`

	var dateStr string
	var price float64
	err := s.db.QueryRowContext(ctx, query, instrumentID, ts.Format("2006-01-02")).Scan(&dateStr, &price)
	if err == sql.ErrNoRows {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("failed to query instrument_price: %w", err)
	}

	asOf, err := ParseTime(dateStr)
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("failed to parse price date: %w", err)
	}

	return model.Quote{
		Price: price,
		AsOf:  asOf,
		Stale: asOf.Format("2006-01-02") != ts.Format("2006-01-02"),
	}, true, nil
}

// GetPrices retrieves an instrument's price series in [from, to],
// oldest first.
func (s *PriceRepository) GetPrices(ctx context.Context, instrumentID string, from, to time.Time) ([]model.PricePoint, error) {
	query := `
		SELECT instrument_id, date, price
		FROM instrument_price
		WHERE instrument_id = ?
		AND date >= ?
		AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, instrumentID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query instrument_price: %w", err)
	}
	defer rows.Close()

	var series []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var dateStr string

		if err := rows.Scan(&p.InstrumentID, &dateStr, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan instrument_price results: %w", err)
		}
		p.Date, err = ParseTime(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price date: %w", err)
		}

		series = append(series, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument_price: %w", err)
	}

	return series, nil
}

// AppendFxRate records an FX rate observation. Re-appending the same
// (pair, date) is a no-op.
func (s *PriceRepository) AppendFxRate(ctx context.Context, r model.FxRate) error {
	query := `
		INSERT OR IGNORE INTO fx_rate (id, from_currency, to_currency, date, rate)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, uuid.New().String(), r.From, r.To, r.Date.Format("2006-01-02"), r.Rate)
	if err != nil {
		return fmt.Errorf("failed to insert fx rate: %w", err)
	}
	return nil
}

// GetFxRateAsOf returns the most recent rate at or before ts for a
// currency pair. Identical currencies always convert at 1. When only
// the inverse pair is recorded, its reciprocal is used.
func (s *PriceRepository) GetFxRateAsOf(ctx context.Context, from, to string, ts time.Time) (float64, bool, error) {
	if from == to {
		return 1, true, nil
	}

	query := `
		SELECT rate
		FROM fx_rate
		WHERE from_currency = ?
		AND to_currency = ?
		AND date <= ?
		ORDER BY date DESC
		LIMIT 1
	`

	var rate float64
	err := s.db.QueryRowContext(ctx, query, from, to, ts.Format("2006-01-02")).Scan(&rate)
	if err == nil {
		return rate, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to query fx_rate: %w", err)
	}

	err = s.db.QueryRowContext(ctx, query, to, from, ts.Format("2006-01-02")).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query fx_rate: %w", err)
	}
	if rate == 0 {
		return 0, false, nil
	}

	return 1 / rate, true, nil
}
