// Package request defines the JSON request bodies accepted by the API.
// Dates are YYYY-MM-DD strings; parsing and range checks live in the
// validation package.
package request

// IngestTransactionRequest is the body of POST /api/ingest/transaction.
type IngestTransactionRequest struct {
	AccountID      string   `json:"accountId"`
	InstrumentID   string   `json:"instrumentId"`
	Side           string   `json:"side"`
	Quantity       float64  `json:"quantity"`
	Price          float64  `json:"price"`
	Fee            float64  `json:"fee"`
	TradeDate      string   `json:"tradeDate"`
	SettlementDate string   `json:"settlementDate"`
	IdempotencyKey string   `json:"idempotencyKey"`
	SpecificLots   []string `json:"specificLots,omitempty"`
}

// IngestActionRequest is the body of POST /api/ingest/corporate-action.
type IngestActionRequest struct {
	InstrumentID   string  `json:"instrumentId"`
	Type           string  `json:"type"`
	EffectiveDate  string  `json:"effectiveDate"`
	Ratio          float64 `json:"ratio,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey"`
}
