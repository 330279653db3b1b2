package handlers

import (
	"net/http"
	"time"

	"github.com/openfolio/engine/internal/api/request"
	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/validation"
)

// PriceHandler handles HTTP requests appending market data.
type PriceHandler struct {
	priceRepo      *repository.PriceRepository
	instrumentRepo *repository.InstrumentRepository
}

// NewPriceHandler creates a new PriceHandler.
func NewPriceHandler(priceRepo *repository.PriceRepository, instrumentRepo *repository.InstrumentRepository) *PriceHandler {
	return &PriceHandler{priceRepo: priceRepo, instrumentRepo: instrumentRepo}
}

// AppendPrice handles POST requests appending a price observation.
// Prices for delisted instruments are rejected.
//
// Endpoint: POST /api/price
// Request Body: AppendPriceRequest
// Response: 201 Created
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if the instrument is unknown
// Error: 422 Unprocessable Entity if the instrument is delisted
func (h *PriceHandler) AppendPrice(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.AppendPriceRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateAppendPrice(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	instrument, err := h.instrumentRepo.Get(r.Context(), req.InstrumentID)
	if err != nil {
		response.RespondError(w, statusFor(err), "failed to append price", err.Error())
		return
	}
	if instrument.Delisted {
		response.RespondError(w, http.StatusUnprocessableEntity, apperrors.ErrInstrumentDelisted.Error(), "")
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	if err := h.priceRepo.AppendPrice(r.Context(), model.PricePoint{
		InstrumentID: req.InstrumentID,
		Date:         date,
		Price:        req.Price,
	}); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to append price", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, nil)
}

// AppendFxRate handles POST requests appending an FX rate observation.
//
// Endpoint: POST /api/fx
// Request Body: AppendFxRateRequest
// Response: 201 Created
// Error: 400 Bad Request if validation fails
func (h *PriceHandler) AppendFxRate(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.AppendFxRateRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateAppendFxRate(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	if err := h.priceRepo.AppendFxRate(r.Context(), model.FxRate{
		From: req.From,
		To:   req.To,
		Date: date,
		Rate: req.Rate,
	}); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to append FX rate", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, nil)
}
