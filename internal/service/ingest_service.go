package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

const (
	retryBaseDelay  = 100 * time.Millisecond
	retryMaxAttempt = 4
)

// IngestService is the write path: durably append to the ledger, then
// recompute the affected lot state with bounded retries. A record that
// exhausts its retries parks in the dead letter queue; the ledger
// append is never rolled back, so ingestion keeps accepting while the
// parked item awaits an explicit rebuild.
type IngestService struct {
	ledgerRepo     *repository.LedgerRepository
	lotRepo        *repository.LotRepository
	accountRepo    *repository.AccountRepository
	instrumentRepo *repository.InstrumentRepository
	priceRepo      *repository.PriceRepository
	deadLetters    *repository.DeadLetterRepository
	lotEngine      *LotEngine
	publisher      *Publisher
	cfg            config.CalculationConfig
}

// NewIngestService creates an IngestService.
func NewIngestService(
	ledgerRepo *repository.LedgerRepository,
	lotRepo *repository.LotRepository,
	accountRepo *repository.AccountRepository,
	instrumentRepo *repository.InstrumentRepository,
	priceRepo *repository.PriceRepository,
	deadLetters *repository.DeadLetterRepository,
	lotEngine *LotEngine,
	publisher *Publisher,
	cfg config.CalculationConfig,
) *IngestService {
	return &IngestService{
		ledgerRepo:     ledgerRepo,
		lotRepo:        lotRepo,
		accountRepo:    accountRepo,
		instrumentRepo: instrumentRepo,
		priceRepo:      priceRepo,
		deadLetters:    deadLetters,
		lotEngine:      lotEngine,
		publisher:      publisher,
		cfg:            cfg,
	}
}

// IngestTransaction validates, durably appends and applies one
// transaction. A duplicate idempotency key returns the original ack
// without reapplying. Validation failures reject before anything is
// written; lot recomputation failures after a successful append retry
// with backoff and then park in the dead letter queue.
func (s *IngestService) IngestTransaction(ctx context.Context, t model.Transaction) (model.Ack, error) {
	if _, err := s.accountRepo.Get(ctx, t.AccountID); err != nil {
		return model.Ack{}, err
	}
	instrument, err := s.instrumentRepo.Get(ctx, t.InstrumentID)
	if err != nil {
		return model.Ack{}, err
	}
	if instrument.Delisted {
		return model.Ack{}, apperrors.ErrInstrumentDelisted
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	// The engine's account stripe spans the append and the apply so
	// live application order matches ledger order.
	unlock := s.lotEngine.LockAccount(t.AccountID)
	defer unlock()

	ack, err := s.ledgerRepo.AppendTransaction(ctx, &t)
	if err != nil {
		return model.Ack{}, err
	}
	if ack.Duplicate {
		return ack, nil
	}

	result, err := s.withRetry(ctx, func(ctx context.Context) (ApplyResult, error) {
		return s.lotEngine.ApplyTransaction(ctx, t)
	})
	if err != nil {
		s.park(ctx, "transaction", t, err)
		return ack, nil
	}

	s.publishPositionChanged(t.AccountID, result)
	return ack, nil
}

// IngestAction durably appends and applies one corporate action across
// all holding accounts. Cash dividends additionally synthesize a
// reinvestment buy for accounts configured with auto-reinvest.
func (s *IngestService) IngestAction(ctx context.Context, a model.CorporateAction) (model.Ack, error) {
	if _, err := s.instrumentRepo.Get(ctx, a.InstrumentID); err != nil {
		return model.Ack{}, err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	ack, err := s.ledgerRepo.AppendAction(ctx, &a)
	if err != nil {
		return model.Ack{}, err
	}
	if ack.Duplicate {
		return ack, nil
	}

	_, err = s.withRetry(ctx, func(ctx context.Context) (ApplyResult, error) {
		return ApplyResult{}, s.lotEngine.ApplyAction(ctx, a)
	})
	if err != nil {
		s.park(ctx, "corporate_action", a, err)
		return ack, nil
	}

	if a.Type == model.ActionCashDividend {
		if err := s.reinvestDividend(ctx, a); err != nil {
			log.Printf("auto-reinvest for action %s failed: %v", a.ID, err)
		}
	}

	return ack, nil
}

// reinvestDividend synthesizes a buy for every auto-reinvest account
// holding the instrument: the dividend cash buys shares at the
// effective-date price. The synthetic transaction carries a
// deterministic idempotency key so a replayed action never reinvests
// twice.
func (s *IngestService) reinvestDividend(ctx context.Context, a model.CorporateAction) error {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return err
	}

	quote, found, err := s.priceRepo.GetPriceAsOf(ctx, a.InstrumentID, a.EffectiveDate)
	if err != nil {
		return err
	}
	if !found || quote.Price <= 0 {
		return fmt.Errorf("no price for %s at %s: %w", a.InstrumentID, a.EffectiveDate.Format("2006-01-02"), apperrors.ErrPriceNotFound)
	}

	for _, account := range accounts {
		if !account.AutoReinvest {
			continue
		}
		lots, err := s.lotRepo.GetLots(ctx, account.ID)
		if err != nil {
			return err
		}
		shares := NewLotBook(account.ID, lots).SharesHeld(a.InstrumentID)
		if shares <= quantityEpsilon {
			continue
		}

		cash := shares * a.Amount
		synthetic := model.Transaction{
			ID:             uuid.New().String(),
			AccountID:      account.ID,
			InstrumentID:   a.InstrumentID,
			Side:           model.SideBuy,
			Quantity:       cash / quote.Price,
			Price:          quote.Price,
			TradeDate:      a.EffectiveDate,
			SettlementDate: a.EffectiveDate,
			IdempotencyKey: a.ID + ":" + account.ID + ":reinvest",
		}
		if _, err := s.IngestTransaction(ctx, synthetic); err != nil {
			return err
		}
	}

	return nil
}

// withRetry runs apply with exponential backoff, retrying every error
// up to the attempt bound. Context cancellation stops retrying.
func (s *IngestService) withRetry(ctx context.Context, apply func(context.Context) (ApplyResult, error)) (ApplyResult, error) {
	var result ApplyResult

	backoff := retry.WithMaxRetries(retryMaxAttempt, retry.NewExponential(retryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var applyErr error
		result, applyErr = apply(ctx)
		if applyErr == nil {
			return nil
		}
		if permanent(applyErr) {
			return applyErr
		}
		return retry.RetryableError(applyErr)
	})

	return result, err
}

// permanent reports whether retrying cannot help: semantic rejections
// fail the same way every attempt.
func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrInsufficientShares) ||
		errors.Is(err, apperrors.ErrLotNotFound) ||
		errors.Is(err, apperrors.ErrLotStateCorrupt) ||
		errors.Is(err, apperrors.ErrAccountNotFound) ||
		errors.Is(err, apperrors.ErrInstrumentUnknown)
}

func (s *IngestService) park(ctx context.Context, kind string, payload interface{}, cause error) {
	log.Printf("%s processing exhausted retries, parking in dead letter queue: %v", kind, cause)
	if err := s.deadLetters.Insert(ctx, kind, payload, cause, retryMaxAttempt+1); err != nil {
		log.Printf("dead letter insert failed: %v", err)
	}
}

func (s *IngestService) publishPositionChanged(accountID string, result ApplyResult) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.Event{
		Type:               model.EventPositionChanged,
		AccountID:          accountID,
		CalculationVersion: s.cfg.Version,
		Payload: map[string]interface{}{
			"lotsAffected": len(result.LotsAffected),
			"realizedGain": result.RealizedGain,
		},
	})
}
