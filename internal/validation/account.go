package validation

import (
	"fmt"
	"strings"

	"github.com/openfolio/engine/internal/api/request"
)

// ValidCostBasisMethod contains the allowed cost basis method values.
var ValidCostBasisMethod = map[string]bool{
	"fifo": true, "lifo": true, "specific": true,
}

// ValidateCreateAccount validates an account registration request.
func ValidateCreateAccount(req request.CreateAccountRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Name) == "" {
		errors["name"] = "name is required"
	}

	if len(req.BaseCurrency) != 3 {
		errors["baseCurrency"] = "baseCurrency must be a 3-letter code"
	}

	if strings.TrimSpace(req.CostBasisMethod) == "" {
		errors["costBasisMethod"] = "costBasisMethod is required"
	} else if !ValidCostBasisMethod[req.CostBasisMethod] {
		errors["costBasisMethod"] = fmt.Sprintf("invalid costBasisMethod: %s", req.CostBasisMethod)
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
