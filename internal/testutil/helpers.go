package testutil

import (
	"database/sql"
	"testing"

	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/marketdata"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/service"
)

// TestCalcConfig returns the calculation knobs used by tests.
func TestCalcConfig() config.CalculationConfig {
	return config.CalculationConfig{
		Version:        "v1",
		BaseCurrency:   "USD",
		PeriodsPerYear: 252,
		VaRWindow:      252,
		Workers:        2,
	}
}

// NewTestLotEngine wires a LotEngine over the given database.
func NewTestLotEngine(t *testing.T, db *sql.DB) *service.LotEngine {
	t.Helper()

	return service.NewLotEngine(
		repository.NewLedgerRepository(db),
		repository.NewLotRepository(db),
		repository.NewAccountRepository(db),
		repository.NewInstrumentRepository(db),
		repository.NewPriceRepository(db),
	)
}

// NewTestValuationService wires a ValuationService backed by the
// database price store for both primary and fallback lookups.
func NewTestValuationService(t *testing.T, db *sql.DB) *service.ValuationService {
	t.Helper()

	store := marketdata.NewStore(repository.NewPriceRepository(db))
	return service.NewValuationService(
		repository.NewAccountRepository(db),
		repository.NewLotRepository(db),
		repository.NewInstrumentRepository(db),
		store,
		store,
		TestCalcConfig(),
	)
}

// NewTestAttributionService wires an AttributionService over the
// database.
func NewTestAttributionService(t *testing.T, db *sql.DB) *service.AttributionService {
	t.Helper()

	return service.NewAttributionService(
		repository.NewInstrumentRepository(db),
		repository.NewBenchmarkRepository(db),
		NewTestValuationService(t, db),
		TestCalcConfig(),
	)
}

// NewTestIngestService wires an IngestService over the database with
// no publisher.
func NewTestIngestService(t *testing.T, db *sql.DB) *service.IngestService {
	t.Helper()

	return service.NewIngestService(
		repository.NewLedgerRepository(db),
		repository.NewLotRepository(db),
		repository.NewAccountRepository(db),
		repository.NewInstrumentRepository(db),
		repository.NewPriceRepository(db),
		repository.NewDeadLetterRepository(db),
		NewTestLotEngine(t, db),
		nil,
		TestCalcConfig(),
	)
}

// NewTestAnalyticsService wires the full analytics stack over the
// database with no publisher.
func NewTestAnalyticsService(t *testing.T, db *sql.DB) *service.AnalyticsService {
	t.Helper()

	valuation := NewTestValuationService(t, db)
	return service.NewAnalyticsService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		repository.NewLotRepository(db),
		repository.NewArtifactRepository(db),
		valuation,
		service.NewReturnsCalculator(),
		service.NewRiskEngine(TestCalcConfig()),
		service.NewAttributionService(
			repository.NewInstrumentRepository(db),
			repository.NewBenchmarkRepository(db),
			valuation,
			TestCalcConfig(),
		),
		nil,
		TestCalcConfig(),
		config.PublisherConfig{QueueSize: 16, DrawdownAlertPct: 0.20},
	)
}
