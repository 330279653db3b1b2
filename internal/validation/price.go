package validation

import (
	"github.com/openfolio/engine/internal/api/request"
)

// ValidateAppendPrice validates a price append request.
func ValidateAppendPrice(req request.AppendPriceRequest) error {
	errors := make(map[string]string)

	if err := ValidateUUID(req.InstrumentID); err != nil {
		errors["instrumentId"] = err.Error()
	}
	checkDate(errors, "date", req.Date)
	if req.Price <= 0 {
		errors["price"] = "price must be positive"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// ValidateAppendFxRate validates an FX rate append request.
func ValidateAppendFxRate(req request.AppendFxRateRequest) error {
	errors := make(map[string]string)

	if len(req.From) != 3 {
		errors["from"] = "from must be a 3-letter code"
	}
	if len(req.To) != 3 {
		errors["to"] = "to must be a 3-letter code"
	}
	if req.From == req.To && len(req.From) == 3 {
		errors["to"] = "from and to must differ"
	}
	checkDate(errors, "date", req.Date)
	if req.Rate <= 0 {
		errors["rate"] = "rate must be positive"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
