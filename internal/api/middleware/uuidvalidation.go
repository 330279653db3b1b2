// Package middleware provides HTTP middleware for request validation
// and processing.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openfolio/engine/internal/api/response"
	"github.com/openfolio/engine/internal/validation"
)

// ValidateUUIDMiddleware rejects requests whose {uuid} URL parameter is
// missing or not a valid UUID with 400 Bad Request. Apply to every
// route keyed by an entity ID.
func ValidateUUIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "uuid")

		if id == "" {
			response.RespondError(w, http.StatusBadRequest, "valid UUID is required", "")
			return
		}

		if err := validation.ValidateUUID(id); err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid UUID format", err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}
