package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfolio/engine/internal/api"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/database"
	"github.com/openfolio/engine/internal/marketdata"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Create repositories
	ledgerRepo := repository.NewLedgerRepository(db)
	lotRepo := repository.NewLotRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	instrumentRepo := repository.NewInstrumentRepository(db)
	priceRepo := repository.NewPriceRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	benchmarkRepo := repository.NewBenchmarkRepository(db)
	deadLetterRepo := repository.NewDeadLetterRepository(db)

	// Create services
	priceStore := marketdata.NewStore(priceRepo)
	publisher := service.NewPublisher(service.LogSink{}, cfg.Publisher)
	publisher.Start()
	defer publisher.Stop()

	lotEngine := service.NewLotEngine(ledgerRepo, lotRepo, accountRepo, instrumentRepo, priceRepo)
	valuationService := service.NewValuationService(accountRepo, lotRepo, instrumentRepo, priceStore, priceStore, cfg.Calculation)
	returnsCalculator := service.NewReturnsCalculator()
	riskEngine := service.NewRiskEngine(cfg.Calculation)
	attributionService := service.NewAttributionService(instrumentRepo, benchmarkRepo, valuationService, cfg.Calculation)
	analytics := service.NewAnalyticsService(
		accountRepo,
		ledgerRepo,
		lotRepo,
		artifactRepo,
		valuationService,
		returnsCalculator,
		riskEngine,
		attributionService,
		publisher,
		cfg.Calculation,
		cfg.Publisher,
	)
	ingestService := service.NewIngestService(
		ledgerRepo,
		lotRepo,
		accountRepo,
		instrumentRepo,
		priceRepo,
		deadLetterRepo,
		lotEngine,
		publisher,
		cfg.Calculation,
	)

	// Nightly snapshot scheduler
	scheduler := service.NewSnapshotScheduler(accountRepo, analytics, cfg.Snapshot, cfg.Calculation)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start snapshot scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(api.Deps{
		DB:             db,
		AccountRepo:    accountRepo,
		InstrumentRepo: instrumentRepo,
		LotRepo:        lotRepo,
		PriceRepo:      priceRepo,
		BenchmarkRepo:  benchmarkRepo,
		IngestService:  ingestService,
		Analytics:      analytics,
		LotEngine:      lotEngine,
	}, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
