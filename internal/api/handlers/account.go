package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openfolio/engine/internal/api/request"
	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/apperrors"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/service"
	"github.com/openfolio/engine/internal/validation"
)

// AccountHandler handles HTTP requests for account endpoints: account
// registration and the derived read models (positions, valuation,
// returns, risk, attribution).
type AccountHandler struct {
	accountRepo *repository.AccountRepository
	lotRepo     *repository.LotRepository
	analytics   *service.AnalyticsService
	lotEngine   *service.LotEngine
}

// NewAccountHandler creates a new AccountHandler with the provided dependencies.
func NewAccountHandler(
	accountRepo *repository.AccountRepository,
	lotRepo *repository.LotRepository,
	analytics *service.AnalyticsService,
	lotEngine *service.LotEngine,
) *AccountHandler {
	return &AccountHandler{
		accountRepo: accountRepo,
		lotRepo:     lotRepo,
		analytics:   analytics,
		lotEngine:   lotEngine,
	}
}

// CreateAccount handles POST requests to register a new account.
//
// Endpoint: POST /api/account
// Request Body: CreateAccountRequest
// Response: 201 Created with Account
// Error: 400 Bad Request if validation fails
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateAccountRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateAccount(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	account := model.Account{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		BaseCurrency:        req.BaseCurrency,
		CostBasisMethod:     model.CostBasisMethod(req.CostBasisMethod),
		ShortSellingEnabled: req.ShortSellingEnabled,
		AutoReinvest:        req.AutoReinvest,
		CreatedAt:           time.Now().UTC(),
	}
	if err := h.accountRepo.Insert(r.Context(), &account); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to create account", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, account)
}

// ListAccounts handles GET requests to list all registered accounts.
//
// Endpoint: GET /api/account
// Response: 200 OK with array of Account
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountRepo.List(r.Context())
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to list accounts", err.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, accounts)
}

// Positions handles GET requests for an account's positions. Without
// as_of the cached current positions are returned; with as_of the
// position set is restricted to lots already open on that date, the
// same convention the valuation uses.
//
// Endpoint: GET /api/account/{uuid}/positions?as_of=YYYY-MM-DD
// Response: 200 OK with array of Position
// Error: 400 Bad Request on a malformed as_of
// Error: 404 Not Found if the account is unknown
func (h *AccountHandler) Positions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	if _, err := h.accountRepo.Get(r.Context(), accountID); err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRetrievePositions.Error(), err.Error())
		return
	}

	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid as_of date", err.Error())
			return
		}

		lots, err := h.lotRepo.GetLots(r.Context(), accountID)
		if err != nil {
			response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrievePositions.Error(), err.Error())
			return
		}
		response.RespondJSON(w, http.StatusOK, service.PositionsAt(accountID, lots, asOf))
		return
	}

	positions, err := h.lotRepo.GetPositions(r.Context(), accountID)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrievePositions.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, positions)
}

// Valuation handles GET requests for an account valuation.
//
// Endpoint: GET /api/account/{uuid}/valuation?as_of=YYYY-MM-DD
// Response: 200 OK with ValuationPoint (as_of defaults to today)
// Error: 400 Bad Request on a malformed as_of
// Error: 404 Not Found if the account is unknown
func (h *AccountHandler) Valuation(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	asOf, err := parseAsOf(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid as_of date", err.Error())
		return
	}

	point, err := h.analytics.Valuation(r.Context(), accountID, asOf)
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRetrieveValuation.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, point)
}

// Returns handles GET requests for an account's TWRR/MWRR over a
// range.
//
// Endpoint: GET /api/account/{uuid}/returns?from=YYYY-MM-DD&to=YYYY-MM-DD
// Response: 200 OK with ReturnSeries
// Error: 400 Bad Request on a malformed or inverted range
// Error: 422 Unprocessable Entity when the range holds too few points
func (h *AccountHandler) Returns(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	from, to, err := validation.ValidateDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	series, err := h.analytics.Returns(r.Context(), accountID, from, to)
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRetrieveReturns.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, series)
}

// Risk handles GET requests for an account's risk snapshot.
//
// Endpoint: GET /api/account/{uuid}/risk?as_of=YYYY-MM-DD
// Response: 200 OK with RiskSnapshot (as_of defaults to today)
// Error: 422 Unprocessable Entity when the trailing window is too short
func (h *AccountHandler) Risk(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	asOf, err := parseAsOf(r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid as_of date", err.Error())
		return
	}

	snapshot, err := h.analytics.Risk(r.Context(), accountID, asOf)
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRetrieveRisk.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, snapshot)
}

// Attribution handles GET requests for a Brinson decomposition against
// a benchmark.
//
// Endpoint: GET /api/account/{uuid}/attribution?from=&to=&benchmark=
// Response: 200 OK with AttributionResult
// Error: 400 Bad Request on a malformed range or missing benchmark ID
// Error: 404 Not Found if the benchmark is unknown
func (h *AccountHandler) Attribution(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	from, to, err := validation.ValidateDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date range", err.Error())
		return
	}

	benchmarkID := r.URL.Query().Get("benchmark")
	if err := validation.ValidateUUID(benchmarkID); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid benchmark ID", err.Error())
		return
	}

	result, err := h.analytics.Attribution(r.Context(), accountID, benchmarkID, from, to)
	if err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRetrieveAttribution.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Rebuild handles POST requests kicking a checkpointed lot state
// rebuild from the full ledger.
//
// Endpoint: POST /api/account/{uuid}/rebuild
// Response: 202 Accepted when the replay completes
// Error: 404 Not Found if the account is unknown
// Error: 500 Internal Server Error if the replay fails
func (h *AccountHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "uuid")

	if err := h.lotEngine.Rebuild(r.Context(), accountID); err != nil {
		response.RespondError(w, statusFor(err), apperrors.ErrFailedToRebuild.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "rebuilt"})
}

// parseAsOf reads the optional as_of query parameter, defaulting to
// the current UTC day.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", raw)
}
