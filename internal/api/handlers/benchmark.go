package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openfolio/engine/internal/api/request"
	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/model"
	"github.com/openfolio/engine/internal/repository"
	"github.com/openfolio/engine/internal/validation"
)

// BenchmarkHandler handles HTTP requests for benchmark endpoints.
type BenchmarkHandler struct {
	benchmarkRepo *repository.BenchmarkRepository
}

// NewBenchmarkHandler creates a new BenchmarkHandler.
func NewBenchmarkHandler(benchmarkRepo *repository.BenchmarkRepository) *BenchmarkHandler {
	return &BenchmarkHandler{benchmarkRepo: benchmarkRepo}
}

// CreateBenchmark handles POST requests to register a benchmark for
// attribution.
//
// Endpoint: POST /api/benchmark
// Request Body: CreateBenchmarkRequest
// Response: 201 Created with Benchmark
// Error: 400 Bad Request if validation fails
func (h *BenchmarkHandler) CreateBenchmark(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateBenchmarkRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateBenchmark(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	benchmark := model.Benchmark{
		ID:   uuid.New().String(),
		Name: req.Name,
	}
	for _, seg := range req.Segments {
		benchmark.Segments = append(benchmark.Segments, model.BenchmarkSegment{
			AssetClass: seg.AssetClass,
			Sector:     seg.Sector,
			Weight:     seg.Weight,
			Return:     seg.Return,
		})
	}

	if err := h.benchmarkRepo.Insert(r.Context(), &benchmark); err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to create benchmark", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, benchmark)
}

// GetBenchmark handles GET requests to retrieve a benchmark by ID.
//
// Endpoint: GET /api/benchmark/{uuid}
// Response: 200 OK with Benchmark
// Error: 404 Not Found if the benchmark is unknown
func (h *BenchmarkHandler) GetBenchmark(w http.ResponseWriter, r *http.Request) {
	benchmarkID := chi.URLParam(r, "uuid")

	benchmark, err := h.benchmarkRepo.Get(r.Context(), benchmarkID)
	if err != nil {
		response.RespondError(w, statusFor(err), "failed to retrieve benchmark", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, benchmark)
}
