// Package api assembles the HTTP surface of the engine: routing,
// middleware and handler wiring.
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openfolio/engine/internal/api/handlers"
	custommiddleware "github.com/openfolio/engine/internal/api/middleware"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/service"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	DB             *sql.DB
	AccountRepo    *repository.AccountRepository
	InstrumentRepo *repository.InstrumentRepository
	LotRepo        *repository.LotRepository
	PriceRepo      *repository.PriceRepository
	BenchmarkRepo  *repository.BenchmarkRepository
	IngestService  *service.IngestService
	Analytics      *service.AnalyticsService
	LotEngine      *service.LotEngine
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Deps, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(deps.DB, cfg.Calculation.Version)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/ingest", func(r chi.Router) {
			ingestHandler := handlers.NewIngestHandler(deps.IngestService)
			r.Post("/transaction", ingestHandler.IngestTransaction)
			r.Post("/corporate-action", ingestHandler.IngestAction)
		})

		r.Route("/account", func(r chi.Router) {
			accountHandler := handlers.NewAccountHandler(deps.AccountRepo, deps.LotRepo, deps.Analytics, deps.LotEngine)
			r.Get("/", accountHandler.ListAccounts)
			r.Post("/", accountHandler.CreateAccount)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/positions", accountHandler.Positions)
				r.Get("/valuation", accountHandler.Valuation)
				r.Get("/returns", accountHandler.Returns)
				r.Get("/risk", accountHandler.Risk)
				r.Get("/attribution", accountHandler.Attribution)
				r.Post("/rebuild", accountHandler.Rebuild)
			})
		})

		r.Route("/instrument", func(r chi.Router) {
			instrumentHandler := handlers.NewInstrumentHandler(deps.InstrumentRepo)
			r.Get("/", instrumentHandler.ListInstruments)
			r.Post("/", instrumentHandler.CreateInstrument)
		})

		priceHandler := handlers.NewPriceHandler(deps.PriceRepo, deps.InstrumentRepo)
		r.Post("/price", priceHandler.AppendPrice)
		r.Post("/fx", priceHandler.AppendFxRate)

		r.Route("/benchmark", func(r chi.Router) {
			benchmarkHandler := handlers.NewBenchmarkHandler(deps.BenchmarkRepo)
			r.Post("/", benchmarkHandler.CreateBenchmark)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", benchmarkHandler.GetBenchmark)
			})
		})
	})

	return r
}
