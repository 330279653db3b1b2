package service

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/repository"
)

// SnapshotScheduler runs the nightly end-of-day pipeline: for every
// account, compute valuation, returns and risk, persist the artifacts
// and publish the update events. Accounts run in parallel, bounded by
// the configured worker count; one failing account logs and does not
// stop the others.
type SnapshotScheduler struct {
	accountRepo *repository.AccountRepository
	analytics   *AnalyticsService
	cron        *cron.Cron
	spec        string
	workers     int
}

// NewSnapshotScheduler creates a SnapshotScheduler with the given cron
// spec.
func NewSnapshotScheduler(
	accountRepo *repository.AccountRepository,
	analytics *AnalyticsService,
	snapCfg config.SnapshotConfig,
	calcCfg config.CalculationConfig,
) *SnapshotScheduler {
	workers := calcCfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &SnapshotScheduler{
		accountRepo: accountRepo,
		analytics:   analytics,
		cron:        cron.New(),
		spec:        snapCfg.CronSpec,
		workers:     workers,
	}
}

// Start registers the nightly job and starts the cron loop.
func (s *SnapshotScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(context.Background(), time.Now().UTC()); err != nil {
			log.Printf("nightly snapshot run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("snapshot scheduler started with spec %q", s.spec)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *SnapshotScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce executes one snapshot pass over all accounts as of asOf.
// Per-account failures are logged and counted; the pass itself only
// fails when account enumeration does.
func (s *SnapshotScheduler) RunOnce(ctx context.Context, asOf time.Time) error {
	started := time.Now()
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return err
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, account := range accounts {
		account := account
		g.Go(func() error {
			if err := s.analytics.Snapshot(gctx, account.ID, asOf); err != nil {
				log.Printf("snapshot for account %s failed: %v", account.ID, err)
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("snapshot pass complete: %d accounts, %d failed, took %s", len(accounts), failed.Load(), time.Since(started).Round(time.Millisecond))
	return nil
}
