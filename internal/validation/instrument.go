package validation

import (
	"strings"

	"github.com/openfolio/engine/internal/api/request"
)

// ValidateCreateInstrument validates an instrument registration
// request.
func ValidateCreateInstrument(req request.CreateInstrumentRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Symbol) == "" {
		errors["symbol"] = "symbol is required"
	}
	if strings.TrimSpace(req.Name) == "" {
		errors["name"] = "name is required"
	}
	if len(req.Currency) != 3 {
		errors["currency"] = "currency must be a 3-letter code"
	}
	if strings.TrimSpace(req.AssetClass) == "" {
		errors["assetClass"] = "assetClass is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
