package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

var errorStatus = map[string]int{
	services.ErrNotAuthenticated.Code: http.StatusUnauthorized,
	services.ErrAlreadyPaired.Code:    http.StatusConflict,
	services.ErrInvalidCode.Code:      http.StatusBadRequest,
	services.ErrCodeNotFound.Code:     http.StatusNotFound,
	services.ErrPairFull.Code:         http.StatusConflict,
	services.ErrNotPaired.Code:        http.StatusConflict,
	services.ErrNotInStep.Code:        http.StatusConflict,
	services.ErrPhaseChanged.Code:     http.StatusConflict,
	services.ErrNoPartnerDataYet.Code: http.StatusConflict,
	services.ErrNotFound.Code:         http.StatusNotFound,
	services.ErrForbidden.Code:        http.StatusForbidden,
	services.ErrInvalidPayload.Code:   http.StatusUnprocessableEntity,
	services.ErrBreakNotPending.Code:  http.StatusConflict,
}

// respondServiceError maps a service error to its HTTP status. Domain errors
// are returned to the client; anything else is logged and hidden.
func respondServiceError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	var domainErr *services.Error
	if errors.As(err, &domainErr) {
		status, ok := errorStatus[domainErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: domainErr.Code})
		return
	}

	if errors.Is(err, docstore.ErrTooMuchContention) {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "too much contention, retry", Code: "contention"})
		return
	}

	log.Error().
		Err(err).
		Str("user_id", userID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("Request failed")
	respondError(w, "internal error", http.StatusInternalServerError)
}

// decodeBody decodes an optional JSON body into v
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
