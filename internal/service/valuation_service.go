package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/marketdata"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// providerTimeout bounds each primary provider lookup. On timeout the
// valuation falls back to last-known-good data and marks the result
// stale instead of failing.
const providerTimeout = 2 * time.Second

// ValuationService computes point-in-time and time-series account
// valuations from open lots, market prices and FX rates.
type ValuationService struct {
	accountRepo    *repository.AccountRepository
	lotRepo        *repository.LotRepository
	instrumentRepo *repository.InstrumentRepository
	provider       marketdata.Provider
	fallback       marketdata.Provider
	cfg            config.CalculationConfig
}

// NewValuationService creates a ValuationService. provider is the
// primary price source; fallback is consulted when the primary times
// out or has no data, and results served from it are flagged stale.
func NewValuationService(
	accountRepo *repository.AccountRepository,
	lotRepo *repository.LotRepository,
	instrumentRepo *repository.InstrumentRepository,
	provider marketdata.Provider,
	fallback marketdata.Provider,
	cfg config.CalculationConfig,
) *ValuationService {
	return &ValuationService{
		accountRepo:    accountRepo,
		lotRepo:        lotRepo,
		instrumentRepo: instrumentRepo,
		provider:       provider,
		fallback:       fallback,
		cfg:            cfg,
	}
}

// ValueAt computes the total value of an account at ts in its base
// currency: Σ quantity × price × fx over every instrument with open
// lots. A missing fresh price degrades that line to the last known
// good one and marks the point stale; it never fails the whole
// valuation. An instrument with no price history at all is an error.
func (s *ValuationService) ValueAt(ctx context.Context, accountID string, ts time.Time) (model.ValuationPoint, error) {
	account, err := s.accountRepo.Get(ctx, accountID)
	if err != nil {
		return model.ValuationPoint{}, err
	}

	lots, err := s.lotRepo.GetLots(ctx, accountID)
	if err != nil {
		return model.ValuationPoint{}, err
	}

	holdings := map[string]float64{}
	for _, lot := range lots {
		if !lot.OpenDate.After(ts) && lot.State != model.LotClosed {
			holdings[lot.InstrumentID] += lot.QuantityOpen
		}
	}

	instrumentIDs := make([]string, 0, len(holdings))
	for id, qty := range holdings {
		if qty == 0 {
			continue
		}
		instrumentIDs = append(instrumentIDs, id)
	}
	sort.Strings(instrumentIDs)

	point := model.ValuationPoint{
		AccountID:          accountID,
		Timestamp:          ts,
		Currency:           account.BaseCurrency,
		CalculationVersion: s.cfg.Version,
	}

	for _, instrumentID := range instrumentIDs {
		instrument, err := s.instrumentRepo.Get(ctx, instrumentID)
		if err != nil {
			return model.ValuationPoint{}, err
		}

		quote, err := s.lookupPrice(ctx, instrumentID, ts)
		if err != nil {
			return model.ValuationPoint{}, fmt.Errorf("valuing %s: %w", instrumentID, err)
		}

		fx := 1.0
		if instrument.Currency != account.BaseCurrency {
			fx, err = s.lookupFx(ctx, instrument.Currency, account.BaseCurrency, ts)
			if err != nil {
				return model.ValuationPoint{}, fmt.Errorf("converting %s to %s: %w", instrument.Currency, account.BaseCurrency, err)
			}
		}

		qty := holdings[instrumentID]
		line := model.ValuationLine{
			InstrumentID: instrumentID,
			Quantity:     qty,
			Price:        quote.Price,
			FxRate:       fx,
			Value:        qty * quote.Price * fx,
			Stale:        quote.Stale,
		}
		point.Lines = append(point.Lines, line)
		point.TotalValue += line.Value
		if line.Stale {
			point.Stale = true
		}
	}

	return point, nil
}

// Series computes one valuation point per day over [from, to],
// inclusive. Days are valued concurrently, bounded by the configured
// worker count, and returned in chronological order.
func (s *ValuationService) Series(ctx context.Context, accountID string, from, to time.Time) ([]model.ValuationPoint, error) {
	if to.Before(from) {
		return nil, apperrors.ErrInvalidDateRange
	}

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	points := make([]model.ValuationPoint, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, day := range days {
		i, day := i, day
		g.Go(func() error {
			point, err := s.ValueAt(gctx, accountID, day)
			if err != nil {
				return err
			}
			points[i] = point
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// lookupPrice asks the primary provider first under a bounded timeout,
// then the last-known-good fallback. Fallback hits are stale.
func (s *ValuationService) lookupPrice(ctx context.Context, instrumentID string, ts time.Time) (model.Quote, error) {
	pctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	quote, err := s.provider.GetPrice(pctx, instrumentID, ts)
	if err == nil {
		return quote, nil
	}
	if !recoverable(err) {
		return model.Quote{}, err
	}

	if !errors.Is(err, apperrors.ErrPriceNotFound) {
		log.Printf("price provider failed for %s at %s, using last known good: %v", instrumentID, ts.Format("2006-01-02"), err)
	}

	quote, ferr := s.fallback.GetPrice(ctx, instrumentID, ts)
	if ferr != nil {
		return model.Quote{}, ferr
	}
	quote.Stale = true
	return quote, nil
}

func (s *ValuationService) lookupFx(ctx context.Context, from, to string, ts time.Time) (float64, error) {
	pctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	rate, err := s.provider.GetFxRate(pctx, from, to, ts)
	if err == nil {
		return rate, nil
	}
	if !recoverable(err) {
		return 0, err
	}

	return s.fallback.GetFxRate(ctx, from, to, ts)
}

// recoverable reports whether a provider failure may be served from
// the fallback store rather than failing the valuation.
func recoverable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, apperrors.ErrPriceNotFound) ||
		errors.Is(err, apperrors.ErrStalePrice)
}
