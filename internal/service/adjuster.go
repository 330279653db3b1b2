package service

import (
	"sort"

	"github.com/openfolio/engine/internal/model"
)

// AdjustPrices converts a raw price series into a corporate-action
// adjusted series. Actions are applied in effective-date order. For a
// split of ratio r effective at date d, every price dated strictly
// before d is divided by r so the series stays continuous across the
// split. Cash dividends and delistings do not alter prices.
//
// Adjusting with a ratio-r split and then a ratio-1/r split reproduces
// the original series within floating tolerance.
func AdjustPrices(series []model.PricePoint, actions []model.CorporateAction) []model.PricePoint {
	adjusted := make([]model.PricePoint, len(series))
	copy(adjusted, series)

	for _, action := range sortedByEffectiveDate(actions) {
		ratio := splitRatio(action)
		if ratio == 0 || ratio == 1 {
			continue
		}
		for i := range adjusted {
			if adjusted[i].Date.Before(action.EffectiveDate) {
				adjusted[i].Price /= ratio
			}
		}
	}

	return adjusted
}

// AdjustLot applies the splits that became effective after a lot was
// opened: quantities are multiplied by the ratio and the cost basis
// per unit divided by it, preserving total cost. Actions effective on
// or before the open date do not touch the lot.
func AdjustLot(lot model.Lot, actionsSinceOpen []model.CorporateAction) model.Lot {
	for _, action := range sortedByEffectiveDate(actionsSinceOpen) {
		ratio := splitRatio(action)
		if ratio == 0 || ratio == 1 {
			continue
		}
		if !action.EffectiveDate.After(lot.OpenDate) {
			continue
		}
		lot.OriginalQuantity *= ratio
		lot.QuantityOpen *= ratio
		lot.QuantityClosed *= ratio
		lot.CostBasisPerUnit /= ratio
	}

	return lot
}

// DividendFlow builds the synthetic cash-flow event for a cash
// dividend: shares held at the effective date times the per-share
// amount. The Returns Calculator consumes these alongside external
// deposits and withdrawals.
func DividendFlow(accountID string, action model.CorporateAction, sharesHeld float64) model.CashFlow {
	return model.CashFlow{
		AccountID: accountID,
		Timestamp: action.EffectiveDate,
		Amount:    sharesHeld * action.Amount,
		Type:      model.FlowDividend,
	}
}

// splitRatio returns the quantity multiplier of an action, or 0 when
// the action does not change quantities. A stock dividend of 5% is a
// split of ratio 1.05.
func splitRatio(action model.CorporateAction) float64 {
	switch action.Type {
	case model.ActionSplit, model.ActionStockDividend:
		return action.Ratio
	default:
		return 0
	}
}

func sortedByEffectiveDate(actions []model.CorporateAction) []model.CorporateAction {
	ordered := make([]model.CorporateAction, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveDate.Before(ordered[j].EffectiveDate)
	})
	return ordered
}
