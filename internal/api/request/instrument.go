package request

// CreateInstrumentRequest is the body of POST /api/instrument.
type CreateInstrumentRequest struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	AssetClass string `json:"assetClass"`
	Sector     string `json:"sector,omitempty"`
}
