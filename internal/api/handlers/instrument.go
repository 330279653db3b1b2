package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/openfolio/engine/internal/api/request"
	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/validation"
)

// InstrumentHandler handles HTTP requests for instrument registration.
type InstrumentHandler struct {
	instrumentRepo *repository.InstrumentRepository
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(instrumentRepo *repository.InstrumentRepository) *InstrumentHandler {
	return &InstrumentHandler{instrumentRepo: instrumentRepo}
}

// CreateInstrument handles POST requests to register a new instrument.
//
// Endpoint: POST /api/instrument
// Request Body: CreateInstrumentRequest
// Response: 201 Created with Instrument
// Error: 400 Bad Request if validation fails
func (h *InstrumentHandler) CreateInstrument(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateInstrumentRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateInstrument(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	instrument := model.Instrument{
		ID:         uuid.New().String(),
		Symbol:     req.Symbol,
		Name:       req.Name,
		Currency:   req.Currency,
		AssetClass: req.AssetClass,
		Sector:     req.Sector,
	}
	if err := h.instrumentRepo.Insert(r.Context(), &instrument); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to create instrument", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, instrument)
}

// ListInstruments handles GET requests to list all registered
// instruments.
//
// Endpoint: GET /api/instrument
// Response: 200 OK with array of Instrument
func (h *InstrumentHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.instrumentRepo.List(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to list instruments", err.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, instruments)
}
