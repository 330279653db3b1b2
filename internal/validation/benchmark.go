package validation

import (
	"math"
	"strings"

	"github.com/openfolio/engine/internal/api/request"
)

// ValidateCreateBenchmark validates a benchmark registration request.
// Segment weights must be positive and sum to 1 within 1e-6.
func ValidateCreateBenchmark(req request.CreateBenchmarkRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Name) == "" {
		errors["name"] = "name is required"
	}

	if len(req.Segments) == 0 {
		errors["segments"] = "at least one segment is required"
	}

	total := 0.0
	for _, seg := range req.Segments {
		if strings.TrimSpace(seg.AssetClass) == "" {
			errors["segments"] = "every segment needs an assetClass"
		}
		if seg.Weight <= 0 {
			errors["segments"] = "segment weights must be positive"
		}
		total += seg.Weight
	}
	if len(req.Segments) > 0 && math.Abs(total-1) > 1e-6 {
		errors["segments"] = "segment weights must sum to 1"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
