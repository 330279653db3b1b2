package model

import "time"

// PricePoint is one observation in an instrument's price series.
type PricePoint struct {
	InstrumentID string    `json:"instrumentId"`
	Date         time.Time `json:"date"`
	Price        float64   `json:"price"`
}

// FxRate is a conversion rate between two currencies on a date.
type FxRate struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// Quote is a price lookup result. Stale marks a value carried forward
// from before the requested time because no fresher price was known.
type Quote struct {
	Price float64   `json:"price"`
	AsOf  time.Time `json:"asOf"`
	Stale bool      `json:"stale"`
}
