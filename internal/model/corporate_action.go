package model

import "time"

// ActionType identifies the kind of corporate action.
type ActionType string

// Allowed corporate action types.
const (
	ActionSplit         ActionType = "split"
	ActionCashDividend  ActionType = "cash_dividend"
	ActionStockDividend ActionType = "stock_dividend"
	ActionDelist        ActionType = "delist"
)

// CorporateAction is an immutable record of a split, dividend or
// delisting. Each action is applied exactly once, keyed by its ID.
//
// Ratio is the split factor for split and stock_dividend actions
// (a 2:1 split has Ratio 2). Amount is the per-share cash amount for
// cash_dividend actions.
type CorporateAction struct {
	Seq            int64      `json:"-"`
	ID             string     `json:"id"`
	InstrumentID   string     `json:"instrumentId"`
	Type           ActionType `json:"type"`
	EffectiveDate  time.Time  `json:"effectiveDate"`
	Ratio          float64    `json:"ratio,omitempty"`
	Amount         float64    `json:"amount,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey"`
	CreatedAt      time.Time  `json:"createdAt,omitempty"`
}

// LedgerEvent is a single entry in the economic event stream for an
// account: either a transaction or a corporate action, never both.
// Events are ordered by (settlement date, trade date, insertion
// sequence); actions order on their effective date.
type LedgerEvent struct {
	Seq         int64            `json:"seq"`
	Transaction *Transaction     `json:"transaction,omitempty"`
	Action      *CorporateAction `json:"action,omitempty"`
}

// EffectiveDate returns the date governing the economic effect of the
// event: settlement date for transactions, effective date for actions.
func (e LedgerEvent) EffectiveDate() time.Time {
	if e.Transaction != nil {
		return e.Transaction.SettlementDate
	}
	return e.Action.EffectiveDate
}
