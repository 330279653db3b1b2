package model

import "time"

// ValuationLine is the contribution of a single instrument to a
// valuation point, converted to the account's base currency.
type ValuationLine struct {
	InstrumentID string  `json:"instrumentId"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	FxRate       float64 `json:"fxRate"`
	Value        float64 `json:"value"`
	Stale        bool    `json:"stale"`
}

// ValuationPoint is the total value of an account at a point in time.
// Stale is set when any line fell back to a last-known-good price.
type ValuationPoint struct {
	AccountID          string          `json:"accountId"`
	Timestamp          time.Time       `json:"timestamp"`
	TotalValue         float64         `json:"totalValue"`
	Currency           string          `json:"currency"`
	Stale              bool            `json:"stale"`
	Lines              []ValuationLine `json:"lines,omitempty"`
	CalculationVersion string          `json:"calculationVersion,omitempty"`
}

// FlowType identifies the direction of an external cash flow.
type FlowType string

// Cash flow types. Deposits and withdrawals are external flows that
// split TWRR sub-periods; dividends are income generated inside the
// portfolio.
const (
	FlowDeposit    FlowType = "deposit"
	FlowWithdrawal FlowType = "withdrawal"
	FlowDividend   FlowType = "dividend"
)

// CashFlow is a dated money movement into or out of an account.
// Amount is positive for money entering the account.
type CashFlow struct {
	AccountID string    `json:"accountId"`
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`
	Type      FlowType  `json:"type"`
}

// External reports whether the flow is investor capital moving in or
// out, as opposed to income generated by the holdings themselves.
func (f CashFlow) External() bool {
	return f.Type == FlowDeposit || f.Type == FlowWithdrawal
}
