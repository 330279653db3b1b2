package model

import "time"

// Side identifies the direction of a transaction.
type Side string

// Allowed transaction sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Transaction is an immutable buy or sell record in the ledger.
// Transactions are never updated or deleted; corrections are modeled
// as new offsetting transactions.
type Transaction struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"accountId"`
	InstrumentID   string    `json:"instrumentId"`
	Side           Side      `json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Fee            float64   `json:"fee"`
	TradeDate      time.Time `json:"tradeDate"`
	SettlementDate time.Time `json:"settlementDate"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`

	// SpecificLots carries the caller-selected lot IDs for sells on
	// accounts configured with the specific-ID cost basis method.
	SpecificLots []string `json:"specificLots,omitempty"`
}

// Ack is the result of appending a record to the ledger. A repeated
// append with a previously seen idempotency key returns the original
// ack with Duplicate set, never an error.
type Ack struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}
