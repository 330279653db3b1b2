package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
)

// rebuildCheckpointEvery is the number of replayed transactions between
// checkpoint persists during a full-history rebuild.
const rebuildCheckpointEvery = 100

// lockStripes is the number of account serialization stripes. All
// writes for one account hash to the same stripe, so per-account lot
// recomputation is single-writer without a global lock.
const lockStripes = 64

// LotEngine consumes the adjusted ledger and maintains each account's
// lots and derived positions. The engine owns the per-account write
// serialization: corporate action application and rebuilds take the
// account stripe themselves, and transaction ingestion takes it via
// LockAccount so the ledger append and the apply stay ordered.
type LotEngine struct {
	ledgerRepo     *repository.LedgerRepository
	lotRepo        *repository.LotRepository
	accountRepo    *repository.AccountRepository
	instrumentRepo *repository.InstrumentRepository
	priceRepo      *repository.PriceRepository

	stripes [lockStripes]sync.Mutex
}

// NewLotEngine creates a new LotEngine with the provided repository dependencies.
func NewLotEngine(
	ledgerRepo *repository.LedgerRepository,
	lotRepo *repository.LotRepository,
	accountRepo *repository.AccountRepository,
	instrumentRepo *repository.InstrumentRepository,
	priceRepo *repository.PriceRepository,
) *LotEngine {
	return &LotEngine{
		ledgerRepo:     ledgerRepo,
		lotRepo:        lotRepo,
		accountRepo:    accountRepo,
		instrumentRepo: instrumentRepo,
		priceRepo:      priceRepo,
	}
}

// LockAccount acquires the account's write stripe and returns the
// unlock. Every lot state mutation for an account must run under its
// stripe; the load-mutate-save in the apply paths is not atomic on its
// own.
func (e *LotEngine) LockAccount(accountID string) func() {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	stripe := &e.stripes[h.Sum32()%lockStripes]
	stripe.Lock()
	return stripe.Unlock
}

// ApplyTransaction applies one ledger transaction to the account's lot
// state and persists the result. The caller holds the account stripe
// via LockAccount, spanning the ledger append and this apply. The lot
// invariants are verified after every apply; a violation halts
// recomputation for this account only and surfaces ErrLotStateCorrupt,
// requiring an explicit rebuild.
func (e *LotEngine) ApplyTransaction(ctx context.Context, t model.Transaction) (ApplyResult, error) {
	account, err := e.accountRepo.Get(ctx, t.AccountID)
	if err != nil {
		return ApplyResult{}, err
	}

	lots, err := e.lotRepo.GetLots(ctx, t.AccountID)
	if err != nil {
		return ApplyResult{}, err
	}
	book := NewLotBook(t.AccountID, lots)

	result, err := book.Apply(account, t)
	if err != nil {
		return ApplyResult{}, err
	}

	if err := book.CheckInvariants(); err != nil {
		return ApplyResult{}, err
	}

	seq, err := e.ledgerRepo.TransactionSeq(ctx, t.ID)
	if err != nil {
		return ApplyResult{}, err
	}
	checkpoint, err := e.lotRepo.GetCheckpoint(ctx, t.AccountID)
	if err != nil {
		return ApplyResult{}, err
	}
	if seq > checkpoint.LastSeq {
		checkpoint.LastSeq = seq
	}

	now := time.Now().UTC()
	if err := e.lotRepo.SaveState(ctx, t.AccountID, book.Snapshot(), book.Positions(now), result.Gains, checkpoint); err != nil {
		return ApplyResult{}, err
	}

	return result, nil
}

// ApplyAction applies a corporate action to every account holding the
// instrument. Splits adjust lot quantities and cost basis, delistings
// force-close positions at the last known price and block further
// price updates for the instrument. An action referencing an unknown
// instrument is rejected, never silently skipped. Each account whose
// state changes advances its action checkpoint so a later rebuild does
// not re-apply the action.
func (e *LotEngine) ApplyAction(ctx context.Context, action model.CorporateAction) error {
	if _, err := e.instrumentRepo.Get(ctx, action.InstrumentID); err != nil {
		return err
	}

	accounts, err := e.accountRepo.List(ctx)
	if err != nil {
		return err
	}

	actionSeq, err := e.ledgerRepo.ActionSeq(ctx, action.ID)
	if err != nil {
		return err
	}

	var lastPrice float64
	if action.Type == model.ActionDelist {
		quote, found, err := e.priceRepo.GetPriceAsOf(ctx, action.InstrumentID, action.EffectiveDate)
		if err != nil {
			return err
		}
		if found {
			lastPrice = quote.Price
		}
	}

	for _, account := range accounts {
		if err := e.applyActionToAccount(ctx, account, action, actionSeq, lastPrice); err != nil {
			return err
		}
	}

	if action.Type == model.ActionDelist {
		if err := e.instrumentRepo.MarkDelisted(ctx, action.InstrumentID); err != nil {
			return err
		}
	}

	return nil
}

// applyActionToAccount applies one action to one account's book under
// the account stripe.
func (e *LotEngine) applyActionToAccount(
	ctx context.Context,
	account model.Account,
	action model.CorporateAction,
	actionSeq int64,
	lastPrice float64,
) error {
	unlock := e.LockAccount(account.ID)
	defer unlock()

	lots, err := e.lotRepo.GetLots(ctx, account.ID)
	if err != nil {
		return err
	}
	book := NewLotBook(account.ID, lots)
	if math.Abs(book.SharesHeld(action.InstrumentID)) <= quantityEpsilon && action.Type != model.ActionSplit {
		return nil
	}

	var result ApplyResult
	switch action.Type {
	case model.ActionSplit, model.ActionStockDividend:
		result = book.ApplySplit(action)
	case model.ActionDelist:
		result = book.ApplyDelist(action, lastPrice)
	case model.ActionCashDividend:
		// No lot change; dividend flows are derived on read.
		return nil
	}
	if len(result.LotsAffected) == 0 {
		return nil
	}

	if err := book.CheckInvariants(); err != nil {
		return err
	}

	checkpoint, err := e.lotRepo.GetCheckpoint(ctx, account.ID)
	if err != nil {
		return err
	}
	if actionSeq > checkpoint.LastActionSeq {
		checkpoint.LastActionSeq = actionSeq
	}
	now := time.Now().UTC()
	return e.lotRepo.SaveState(ctx, account.ID, book.Snapshot(), book.Positions(now), result.Gains, checkpoint)
}

// Rebuild replays an account's transaction history from the persisted
// checkpoint, producing the same lot set as live ingestion. Corporate
// actions already applied live are skipped via the action checkpoint,
// so rebuilding after a live split never re-adjusts the book.
// Cancellation is cooperative at transaction granularity: progress is
// checkpointed so a cancelled rebuild resumes without redoing
// already-processed transactions. Use Reset first for a
// from-empty-state repair rebuild.
func (e *LotEngine) Rebuild(ctx context.Context, accountID string) error {
	unlock := e.LockAccount(accountID)
	defer unlock()

	account, err := e.accountRepo.Get(ctx, accountID)
	if err != nil {
		return err
	}

	checkpoint, err := e.lotRepo.GetCheckpoint(ctx, accountID)
	if err != nil {
		return err
	}
	lots, err := e.lotRepo.GetLots(ctx, accountID)
	if err != nil {
		return err
	}
	book := NewLotBook(accountID, lots)

	transactions, err := e.ledgerRepo.GetTransactionsAfter(ctx, accountID, checkpoint.LastSeq)
	if err != nil {
		return err
	}
	actions, err := e.ledgerRepo.GetAllActions(ctx)
	if err != nil {
		return err
	}

	// The action checkpoint marks everything the live path has already
	// applied to this book; only actions beyond it may still be due.
	pendingActions := make([]model.CorporateAction, 0, len(actions))
	for _, a := range actions {
		if a.Seq <= checkpoint.LastActionSeq {
			continue
		}
		pendingActions = append(pendingActions, a)
	}
	sort.SliceStable(pendingActions, func(i, j int) bool {
		return pendingActions[i].EffectiveDate.Before(pendingActions[j].EffectiveDate)
	})

	var gains []model.RealizedGain
	actionIdx := 0
	processed := 0

	applyActionsThrough := func(date time.Time) error {
		for actionIdx < len(pendingActions) && !pendingActions[actionIdx].EffectiveDate.After(date) {
			action := pendingActions[actionIdx]
			actionIdx++
			if action.Seq > checkpoint.LastActionSeq {
				checkpoint.LastActionSeq = action.Seq
			}
			if math.Abs(book.SharesHeld(action.InstrumentID)) <= quantityEpsilon {
				continue
			}
			var result ApplyResult
			switch action.Type {
			case model.ActionSplit, model.ActionStockDividend:
				result = book.ApplySplit(action)
			case model.ActionDelist:
				quote, _, priceErr := e.priceRepo.GetPriceAsOf(ctx, action.InstrumentID, action.EffectiveDate)
				if priceErr != nil {
					return priceErr
				}
				result = book.ApplyDelist(action, quote.Price)
			default:
				continue
			}
			gains = append(gains, result.Gains...)
		}
		return nil
	}

	persist := func() error {
		now := time.Now().UTC()
		if err := e.lotRepo.SaveState(ctx, accountID, book.Snapshot(), book.Positions(now), gains, checkpoint); err != nil {
			return err
		}
		gains = nil
		return nil
	}

	for _, t := range transactions {
		select {
		case <-ctx.Done():
			if persistErr := persist(); persistErr != nil {
				return persistErr
			}
			return ctx.Err()
		default:
		}

		// Actions sort ahead of same-date transactions; ApplySplit
		// itself only touches lots opened strictly before the
		// effective date.
		if err := applyActionsThrough(t.SettlementDate); err != nil {
			return err
		}

		result, err := book.Apply(account, t)
		if err != nil {
			return fmt.Errorf("replay of transaction %s failed: %w", t.ID, err)
		}
		gains = append(gains, result.Gains...)

		seq, err := e.ledgerRepo.TransactionSeq(ctx, t.ID)
		if err != nil {
			return err
		}
		if seq > checkpoint.LastSeq {
			checkpoint.LastSeq = seq
		}
		processed++

		if processed%rebuildCheckpointEvery == 0 {
			if err := book.CheckInvariants(); err != nil {
				return err
			}
			if err := persist(); err != nil {
				return err
			}
		}
	}

	if err := applyActionsThrough(farFuture); err != nil {
		return err
	}

	if err := book.CheckInvariants(); err != nil {
		if errors.Is(err, apperrors.ErrLotStateCorrupt) {
			log.Printf("lot state corrupt for account %s after rebuild: %v", accountID, err)
		}
		return err
	}

	if err := persist(); err != nil {
		return err
	}

	log.Printf("rebuilt lot state for account %s: %d transactions replayed", accountID, processed)
	return nil
}

// Reset clears all derived lot state for an account, including both
// checkpoints, so the next Rebuild replays the full ledger from empty
// state. This is the explicit repair action for a corrupt book.
func (e *LotEngine) Reset(ctx context.Context, accountID string) error {
	unlock := e.LockAccount(accountID)
	defer unlock()
	return e.lotRepo.ClearState(ctx, accountID)
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
