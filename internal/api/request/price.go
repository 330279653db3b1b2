package request

// AppendPriceRequest is the body of POST /api/price.
type AppendPriceRequest struct {
	InstrumentID string  `json:"instrumentId"`
	Date         string  `json:"date"`
	Price        float64 `json:"price"`
}

// AppendFxRateRequest is the body of POST /api/fx.
type AppendFxRateRequest struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}
