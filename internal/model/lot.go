package model

import "time"

// LotState tracks the lifecycle of a tax lot. CLOSED is terminal.
type LotState string

// Lot lifecycle states.
const (
	LotOpen            LotState = "open"
	LotPartiallyClosed LotState = "partially_closed"
	LotClosed          LotState = "closed"
)

// Lot close reasons.
const (
	CloseReasonSold     = "sold"
	CloseReasonDelisted = "delisted"
)

// CostBasisMethod selects how sells pick lots to close.
type CostBasisMethod string

// Supported cost basis methods.
const (
	MethodFIFO       CostBasisMethod = "fifo"
	MethodLIFO       CostBasisMethod = "lifo"
	MethodSpecificID CostBasisMethod = "specific"
)

// Lot is a discrete purchase of an instrument tracked separately for
// cost basis purposes. A lot is created by a buy and reduced or closed
// by subsequent sells.
//
// Invariant: QuantityOpen + QuantityClosed == OriginalQuantity at all
// times, and the sum of QuantityOpen across an instrument's lots equals
// the current position quantity.
type Lot struct {
	ID                   string     `json:"id"`
	AccountID            string     `json:"accountId"`
	InstrumentID         string     `json:"instrumentId"`
	OriginTransactionID  string     `json:"originTransactionId"`
	OriginalQuantity     float64    `json:"originalQuantity"`
	QuantityOpen         float64    `json:"quantityOpen"`
	QuantityClosed       float64    `json:"quantityClosed"`
	CostBasisPerUnit     float64    `json:"costBasisPerUnit"`
	OpenDate             time.Time  `json:"openDate"`
	CloseDate            *time.Time `json:"closeDate,omitempty"`
	CloseReason          string     `json:"closeReason,omitempty"`
	State                LotState   `json:"state"`
}

// Position is a derived, cached view of an instrument holding. It is
// always reconstructable by summing open lots and is never a source of
// truth.
type Position struct {
	AccountID    string    `json:"accountId"`
	InstrumentID string    `json:"instrumentId"`
	Quantity     float64   `json:"quantity"`
	AverageCost  float64   `json:"averageCost"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// RealizedGain records the taxable outcome of closing (part of) a lot.
type RealizedGain struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	InstrumentID  string    `json:"instrumentId"`
	LotID         string    `json:"lotId"`
	TransactionID string    `json:"transactionId"`
	Date          time.Time `json:"date"`
	QuantitySold  float64   `json:"quantitySold"`
	CostBasis     float64   `json:"costBasis"`
	Proceeds      float64   `json:"proceeds"`
	Gain          float64   `json:"gain"`
}
