// Package handlers contains the HTTP layer: request parsing,
// validation dispatch and response shaping. Business logic lives in
// the service layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openfolio/engine/internal/apperrors"
)

// parseJSON decodes the request body into T, rejecting unknown fields.
func parseJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&v)
	return v, err
}

// statusFor maps domain errors to HTTP status codes: missing entities
// to 404, semantic rejections to 422, bad input to 400, everything
// else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound),
		errors.Is(err, apperrors.ErrInstrumentUnknown),
		errors.Is(err, apperrors.ErrLotNotFound),
		errors.Is(err, apperrors.ErrBenchmarkNotFound),
		errors.Is(err, apperrors.ErrArtifactNotFound),
		errors.Is(err, apperrors.ErrPriceNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientShares),
		errors.Is(err, apperrors.ErrInstrumentDelisted),
		errors.Is(err, apperrors.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrInvalidUUID),
		errors.Is(err, apperrors.ErrEmptyID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
