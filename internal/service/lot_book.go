package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
)

// quantityEpsilon bounds floating error when comparing share counts.
const quantityEpsilon = 1e-9

// LotBook is the in-memory lot state of a single account. All
// mutations go through Apply/ApplyAction; the single-writer-per-account
// partitioning guarantees no two goroutines mutate the same book.
//
// Lot and realized-gain IDs are derived from the originating
// transaction IDs, so replaying the same ledger from an empty book
// always reproduces identical state.
type LotBook struct {
	AccountID string
	Lots      []*model.Lot

	// netShares is the per-instrument net quantity implied by the
	// applied transactions, kept for the conservation invariant:
	// sum of open lot quantities must always equal it.
	netShares map[string]float64
}

// ApplyResult reports the effect of applying one transaction or
// corporate action to a lot book.
type ApplyResult struct {
	LotsAffected []*model.Lot
	RealizedGain float64
	Gains        []model.RealizedGain
}

// NewLotBook creates a lot book from previously persisted lots. The
// net share counts are reconstructed from the lots themselves.
func NewLotBook(accountID string, lots []model.Lot) *LotBook {
	book := &LotBook{
		AccountID: accountID,
		netShares: make(map[string]float64),
	}
	for i := range lots {
		l := lots[i]
		book.Lots = append(book.Lots, &l)
		book.netShares[l.InstrumentID] += l.QuantityOpen
	}
	return book
}

// Apply processes one buy or sell transaction under the account's
// configured cost basis method and returns the affected lots and any
// realized gain.
func (b *LotBook) Apply(account model.Account, t model.Transaction) (ApplyResult, error) {
	switch t.Side {
	case model.SideBuy:
		return b.applyBuy(t)
	case model.SideSell:
		return b.applySell(account, t)
	default:
		return ApplyResult{}, fmt.Errorf("unknown transaction side %q", t.Side)
	}
}

// applyBuy covers open short lots first, then opens a new lot for any
// remaining quantity. The new lot's ID is the transaction ID, keeping
// replay deterministic.
func (b *LotBook) applyBuy(t model.Transaction) (ApplyResult, error) {
	result := ApplyResult{}
	remaining := t.Quantity
	netPrice := t.Price
	if t.Quantity > 0 {
		netPrice = t.Price + t.Fee/t.Quantity
	}

	for _, lot := range b.shortLots(t.InstrumentID) {
		if remaining <= quantityEpsilon {
			break
		}
		cover := math.Min(remaining, -lot.QuantityOpen)
		lot.QuantityOpen += cover
		lot.QuantityClosed = lot.OriginalQuantity - lot.QuantityOpen
		b.transition(lot, t.SettlementDate, model.CloseReasonSold)

		// Short gain: sold at the lot's basis, covered at the buy price.
		gain := cover * (lot.CostBasisPerUnit - netPrice)
		result.RealizedGain += gain
		result.Gains = append(result.Gains, model.RealizedGain{
			ID:            t.ID + ":" + lot.ID,
			AccountID:     b.AccountID,
			InstrumentID:  t.InstrumentID,
			LotID:         lot.ID,
			TransactionID: t.ID,
			Date:          t.SettlementDate,
			QuantitySold:  cover,
			CostBasis:     cover * netPrice,
			Proceeds:      cover * lot.CostBasisPerUnit,
			Gain:          gain,
		})
		result.LotsAffected = append(result.LotsAffected, lot)
		remaining -= cover
	}

	if remaining > quantityEpsilon {
		lot := &model.Lot{
			ID:                  t.ID,
			AccountID:           b.AccountID,
			InstrumentID:        t.InstrumentID,
			OriginTransactionID: t.ID,
			OriginalQuantity:    remaining,
			QuantityOpen:        remaining,
			CostBasisPerUnit:    netPrice,
			OpenDate:            t.SettlementDate,
			State:               model.LotOpen,
		}
		b.Lots = append(b.Lots, lot)
		result.LotsAffected = append(result.LotsAffected, lot)
	}

	b.netShares[t.InstrumentID] += t.Quantity
	return result, nil
}

// applySell closes lots selected by the account's cost basis method in
// order until the sell quantity is exhausted. Oversells open a short
// lot only when the account allows short selling.
func (b *LotBook) applySell(account model.Account, t model.Transaction) (ApplyResult, error) {
	selected, err := b.selectLots(account.CostBasisMethod, t)
	if err != nil {
		return ApplyResult{}, err
	}

	result := ApplyResult{}
	remaining := t.Quantity
	netPrice := t.Price
	if t.Quantity > 0 {
		netPrice = t.Price - t.Fee/t.Quantity
	}

	for _, lot := range selected {
		if remaining <= quantityEpsilon {
			break
		}
		closed := math.Min(remaining, lot.QuantityOpen)
		lot.QuantityOpen -= closed
		lot.QuantityClosed = lot.OriginalQuantity - lot.QuantityOpen
		b.transition(lot, t.SettlementDate, model.CloseReasonSold)

		gain := closed * (netPrice - lot.CostBasisPerUnit)
		result.RealizedGain += gain
		result.Gains = append(result.Gains, model.RealizedGain{
			ID:            t.ID + ":" + lot.ID,
			AccountID:     b.AccountID,
			InstrumentID:  t.InstrumentID,
			LotID:         lot.ID,
			TransactionID: t.ID,
			Date:          t.SettlementDate,
			QuantitySold:  closed,
			CostBasis:     closed * lot.CostBasisPerUnit,
			Proceeds:      closed * netPrice,
			Gain:          gain,
		})
		result.LotsAffected = append(result.LotsAffected, lot)
		remaining -= closed
	}

	if remaining > quantityEpsilon {
		if !account.ShortSellingEnabled {
			return ApplyResult{}, apperrors.ErrInsufficientShares
		}
		short := &model.Lot{
			ID:                  t.ID,
			AccountID:           b.AccountID,
			InstrumentID:        t.InstrumentID,
			OriginTransactionID: t.ID,
			OriginalQuantity:    -remaining,
			QuantityOpen:        -remaining,
			CostBasisPerUnit:    netPrice,
			OpenDate:            t.SettlementDate,
			State:               model.LotOpen,
		}
		b.Lots = append(b.Lots, short)
		result.LotsAffected = append(result.LotsAffected, short)
	}

	b.netShares[t.InstrumentID] -= t.Quantity
	return result, nil
}

// selectLots picks the lots a sell closes, in closing order.
func (b *LotBook) selectLots(method model.CostBasisMethod, t model.Transaction) ([]*model.Lot, error) {
	switch method {
	case model.MethodLIFO:
		open := b.openLots(t.InstrumentID)
		sort.SliceStable(open, func(i, j int) bool { return open[i].OpenDate.After(open[j].OpenDate) })
		return open, nil

	case model.MethodSpecificID:
		var selected []*model.Lot
		available := 0.0
		for _, id := range t.SpecificLots {
			lot := b.findLot(id)
			if lot == nil || lot.InstrumentID != t.InstrumentID || lot.QuantityOpen <= quantityEpsilon {
				return nil, apperrors.ErrLotNotFound
			}
			selected = append(selected, lot)
			available += lot.QuantityOpen
		}
		if available+quantityEpsilon < t.Quantity {
			return nil, apperrors.ErrLotNotFound
		}
		return selected, nil

	default: // FIFO
		open := b.openLots(t.InstrumentID)
		sort.SliceStable(open, func(i, j int) bool { return open[i].OpenDate.Before(open[j].OpenDate) })
		return open, nil
	}
}

// ApplySplit adjusts every lot of the instrument opened strictly
// before the action's effective date, and scales the ledger-implied
// net shares to match.
func (b *LotBook) ApplySplit(action model.CorporateAction) ApplyResult {
	ratio := splitRatio(action)
	result := ApplyResult{}
	if ratio == 0 || ratio == 1 {
		return result
	}

	for _, lot := range b.Lots {
		if lot.InstrumentID != action.InstrumentID || !action.EffectiveDate.After(lot.OpenDate) {
			continue
		}
		b.netShares[action.InstrumentID] -= lot.QuantityOpen
		adjusted := AdjustLot(*lot, []model.CorporateAction{action})
		*lot = adjusted
		b.netShares[action.InstrumentID] += lot.QuantityOpen
		result.LotsAffected = append(result.LotsAffected, lot)
	}

	return result
}

// ApplyDelist force-closes the instrument's position at the last known
// price with close reason "delisted".
func (b *LotBook) ApplyDelist(action model.CorporateAction, lastPrice float64) ApplyResult {
	result := ApplyResult{}

	for _, lot := range b.Lots {
		if lot.InstrumentID != action.InstrumentID || math.Abs(lot.QuantityOpen) <= quantityEpsilon {
			continue
		}
		closed := lot.QuantityOpen
		b.netShares[action.InstrumentID] -= closed
		lot.QuantityOpen = 0
		lot.QuantityClosed = lot.OriginalQuantity
		b.transition(lot, action.EffectiveDate, model.CloseReasonDelisted)

		gain := closed * (lastPrice - lot.CostBasisPerUnit)
		result.RealizedGain += gain
		result.Gains = append(result.Gains, model.RealizedGain{
			ID:            action.ID + ":" + lot.ID,
			AccountID:     b.AccountID,
			InstrumentID:  action.InstrumentID,
			LotID:         lot.ID,
			TransactionID: action.ID,
			Date:          action.EffectiveDate,
			QuantitySold:  closed,
			CostBasis:     closed * lot.CostBasisPerUnit,
			Proceeds:      closed * lastPrice,
			Gain:          gain,
		})
		result.LotsAffected = append(result.LotsAffected, lot)
	}

	return result
}

// SharesHeld returns the open quantity of an instrument.
func (b *LotBook) SharesHeld(instrumentID string) float64 {
	total := 0.0
	for _, lot := range b.Lots {
		if lot.InstrumentID == instrumentID {
			total += lot.QuantityOpen
		}
	}
	return total
}

// Positions derives the position cache from open lots. Instruments
// whose position has gone flat are included with quantity 0 so stale
// cache rows get overwritten.
func (b *LotBook) Positions(now time.Time) []model.Position {
	type aggregate struct {
		quantity float64
		cost     float64
	}
	byInstrument := make(map[string]*aggregate)
	var order []string

	for _, lot := range b.Lots {
		agg, ok := byInstrument[lot.InstrumentID]
		if !ok {
			agg = &aggregate{}
			byInstrument[lot.InstrumentID] = agg
			order = append(order, lot.InstrumentID)
		}
		agg.quantity += lot.QuantityOpen
		agg.cost += lot.QuantityOpen * lot.CostBasisPerUnit
	}
	sort.Strings(order)

	positions := make([]model.Position, 0, len(order))
	for _, instrumentID := range order {
		agg := byInstrument[instrumentID]
		averageCost := 0.0
		if math.Abs(agg.quantity) > quantityEpsilon {
			averageCost = agg.cost / agg.quantity
		}
		positions = append(positions, model.Position{
			AccountID:    b.AccountID,
			InstrumentID: instrumentID,
			Quantity:     agg.quantity,
			AverageCost:  averageCost,
			LastUpdated:  now,
		})
	}

	return positions
}

// PositionsAt aggregates positions over the lots already open on asOf,
// excluding fully closed ones. This mirrors the valuation's view of a
// historic date; it does not replay partial closes.
func PositionsAt(accountID string, lots []model.Lot, asOf time.Time) []model.Position {
	held := make([]model.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.OpenDate.After(asOf) || lot.State == model.LotClosed {
			continue
		}
		held = append(held, lot)
	}
	return NewLotBook(accountID, held).Positions(asOf)
}

// CheckInvariants verifies the two lot invariants: per lot,
// quantity_open + quantity_closed equals the original quantity; per
// instrument, the open quantities sum to the transaction-implied net
// position. A violation means the book is corrupt and must be rebuilt
// from the ledger.
func (b *LotBook) CheckInvariants() error {
	perInstrument := make(map[string]float64)

	for _, lot := range b.Lots {
		if math.Abs(lot.QuantityOpen+lot.QuantityClosed-lot.OriginalQuantity) > quantityEpsilon {
			return fmt.Errorf("%w: lot %s open %f + closed %f != original %f",
				apperrors.ErrLotStateCorrupt, lot.ID, lot.QuantityOpen, lot.QuantityClosed, lot.OriginalQuantity)
		}
		perInstrument[lot.InstrumentID] += lot.QuantityOpen
	}

	for instrumentID, implied := range b.netShares {
		if math.Abs(perInstrument[instrumentID]-implied) > quantityEpsilon {
			return fmt.Errorf("%w: instrument %s open lots sum %f != ledger net %f",
				apperrors.ErrLotStateCorrupt, instrumentID, perInstrument[instrumentID], implied)
		}
	}

	return nil
}

// Snapshot returns a deep copy of the lots for persistence.
func (b *LotBook) Snapshot() []model.Lot {
	lots := make([]model.Lot, len(b.Lots))
	for i, lot := range b.Lots {
		lots[i] = *lot
		if lot.CloseDate != nil {
			closeDate := *lot.CloseDate
			lots[i].CloseDate = &closeDate
		}
	}
	return lots
}

func (b *LotBook) openLots(instrumentID string) []*model.Lot {
	var open []*model.Lot
	for _, lot := range b.Lots {
		if lot.InstrumentID == instrumentID && lot.QuantityOpen > quantityEpsilon {
			open = append(open, lot)
		}
	}
	return open
}

func (b *LotBook) shortLots(instrumentID string) []*model.Lot {
	var short []*model.Lot
	for _, lot := range b.Lots {
		if lot.InstrumentID == instrumentID && lot.QuantityOpen < -quantityEpsilon {
			short = append(short, lot)
		}
	}
	return short
}

func (b *LotBook) findLot(id string) *model.Lot {
	for _, lot := range b.Lots {
		if lot.ID == id {
			return lot
		}
	}
	return nil
}

// transition moves a lot through OPEN -> PARTIALLY_CLOSED -> CLOSED.
// CLOSED is terminal.
func (b *LotBook) transition(lot *model.Lot, at time.Time, reason string) {
	if math.Abs(lot.QuantityOpen) <= quantityEpsilon {
		lot.QuantityOpen = 0
		lot.State = model.LotClosed
		closeDate := at
		lot.CloseDate = &closeDate
		lot.CloseReason = reason
		return
	}
	if math.Abs(lot.QuantityClosed) > quantityEpsilon {
		lot.State = model.LotPartiallyClosed
	}
}
