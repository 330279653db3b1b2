package handlers

import (
	"database/sql"
	"net/http"

	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/database"
)

// SystemHandler handles HTTP requests for system endpoints.
type SystemHandler struct {
	db      *sql.DB
	version string
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db *sql.DB, version string) *SystemHandler {
	return &SystemHandler{db: db, version: version}
}

// Health reports database connectivity.
//
// Endpoint: GET /api/system/health
// Response: 200 OK with {status: "ok"}
// Error: 503 Service Unavailable if the database is unreachable
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := database.HealthCheck(h.db); err != nil {
		response.RespondError(w, http.StatusServiceUnavailable, "database unavailable", err.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the active calculation version.
//
// Endpoint: GET /api/system/version
// Response: 200 OK with {calculationVersion}
func (h *SystemHandler) Version(w http.ResponseWriter, _ *http.Request) {
	response.RespondJSON(w, http.StatusOK, map[string]string{"calculationVersion": h.version})
}
