package model

import "time"

// Account holds the configuration under which an account's ledger is
// interpreted: base currency, lot selection method and trading flags.
type Account struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	BaseCurrency        string          `json:"baseCurrency"`
	CostBasisMethod     CostBasisMethod `json:"costBasisMethod"`
	ShortSellingEnabled bool            `json:"shortSellingEnabled"`
	AutoReinvest        bool            `json:"autoReinvest"`
	CreatedAt           time.Time       `json:"createdAt,omitempty"`
}

// Instrument is a tradable security known to the engine. Corporate
// actions and prices referencing an unregistered instrument are
// rejected. Delisted instruments accept no further price updates.
type Instrument struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	AssetClass string `json:"assetClass"`
	Sector     string `json:"sector,omitempty"`
	Delisted   bool   `json:"delisted"`
}
