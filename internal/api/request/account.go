package request

// CreateAccountRequest is the body of POST /api/account.
type CreateAccountRequest struct {
	Name                string `json:"name"`
	BaseCurrency        string `json:"baseCurrency"`
	CostBasisMethod     string `json:"costBasisMethod"`
	ShortSellingEnabled bool   `json:"shortSellingEnabled"`
	AutoReinvest        bool   `json:"autoReinvest"`
}
