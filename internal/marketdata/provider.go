// Package marketdata defines the price/FX interface the valuation
// service consumes and a database-backed implementation over the
// engine's own price store. External feeds (vendor APIs, streaming
// ticks) plug in behind the same interface; the valuation service
// falls back to last-known-good data when a provider times out.
package marketdata

import (
	"context"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// Provider answers point-in-time price and FX lookups. A price at a
// requested time is the latest observation at or before that time,
// never a future one.
type Provider interface {
	GetPrice(ctx context.Context, instrumentID string, ts time.Time) (model.Quote, error)
	GetFxRate(ctx context.Context, from, to string, ts time.Time) (float64, error)
}

// Store is the database-backed Provider over the engine's price
// repository.
type Store struct {
	prices *repository.PriceRepository
}

// NewStore creates a Store over the given price repository.
func NewStore(prices *repository.PriceRepository) *Store {
	return &Store{prices: prices}
}

// GetPrice returns the latest price at or before ts for an instrument.
// Returns apperrors.ErrPriceNotFound when no observation exists at or
// before ts.
func (s *Store) GetPrice(ctx context.Context, instrumentID string, ts time.Time) (model.Quote, error) {
	quote, found, err := s.prices.GetPriceAsOf(ctx, instrumentID, ts)
	if err != nil {
		return model.Quote{}, err
	}
	if !found {
		return model.Quote{}, apperrors.ErrPriceNotFound
	}
	return quote, nil
}

// GetFxRate returns the latest conversion rate at or before ts.
// Returns apperrors.ErrPriceNotFound when the pair has never been
// observed.
func (s *Store) GetFxRate(ctx context.Context, from, to string, ts time.Time) (float64, error) {
	rate, found, err := s.prices.GetFxRateAsOf(ctx, from, to, ts)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, apperrors.ErrPriceNotFound
	}
	return rate, nil
}
