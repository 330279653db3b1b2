package handlers

import (
	"net/http"
	"time"

	"github.com/openfolio/engine/internal/api/request"
	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/service"
	"github.com/openfolio/engine/internal/validation"
)

// IngestHandler handles HTTP requests for the ledger write path.
type IngestHandler struct {
	ingestService *service.IngestService
}

// NewIngestHandler creates a new IngestHandler with the provided service dependency.
func NewIngestHandler(ingestService *service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// IngestTransaction handles POST requests appending a transaction to
// the ledger. A repeated idempotency key returns the original ack with
// duplicate set, not an error.
//
// Endpoint: POST /api/ingest/transaction
// Request Body: IngestTransactionRequest
// Response: 201 Created with Ack {id, duplicate}; 200 OK on duplicate
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if account or instrument is unknown
// Error: 422 Unprocessable Entity on insufficient shares or delisted instrument
func (h *IngestHandler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.IngestTransactionRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateIngestTransaction(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	tradeDate, _ := time.Parse("2006-01-02", req.TradeDate)
	settlementDate, _ := time.Parse("2006-01-02", req.SettlementDate)

	ack, err := h.ingestService.IngestTransaction(r.Context(), model.Transaction{
		AccountID:      req.AccountID,
		InstrumentID:   req.InstrumentID,
		Side:           model.Side(req.Side),
		Quantity:       req.Quantity,
		Price:          req.Price,
		Fee:            req.Fee,
		TradeDate:      tradeDate,
		SettlementDate: settlementDate,
		IdempotencyKey: req.IdempotencyKey,
		SpecificLots:   req.SpecificLots,
	})
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToAppendLedger.Error(), err.Error())
		return
	}

	status := http.StatusCreated
	if ack.Duplicate {
		status = http.StatusOK
	}
	response.RespondJSON(w, status, ack)
}

// IngestAction handles POST requests appending a corporate action to
// the ledger.
//
// Endpoint: POST /api/ingest/corporate-action
// Request Body: IngestActionRequest
// Response: 201 Created with Ack {id, duplicate}; 200 OK on duplicate
// Error: 400 Bad Request if validation fails
// Error: 404 Not Found if the instrument is unknown
func (h *IngestHandler) IngestAction(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.IngestActionRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateIngestAction(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	effectiveDate, _ := time.Parse("2006-01-02", req.EffectiveDate)

	ack, err := h.ingestService.IngestAction(r.Context(), model.CorporateAction{
		InstrumentID:   req.InstrumentID,
		Type:           model.ActionType(req.Type),
		EffectiveDate:  effectiveDate,
		Ratio:          req.Ratio,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToAppendLedger.Error(), err.Error())
		return
	}

	status := http.StatusCreated
	if ack.Duplicate {
		status = http.StatusOK
	}
	response.RespondJSON(w, status, ack)
}
