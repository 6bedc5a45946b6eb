package handlers

import (
	"io"
	"net/http"

	"matelock-backend/internal/middleware"
	"matelock-backend/internal/models"
	"matelock-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

const maxPayloadBytes = 64 << 10

// SetupHandler handles the setup consensus endpoints
type SetupHandler struct {
	setupService   *services.SetupService
	pairService    *services.PairService
	archiveService *services.ArchiveService
}

// NewSetupHandler creates a new setup handler. archiveService may be nil.
func NewSetupHandler(setupService *services.SetupService, pairService *services.PairService, archiveService *services.ArchiveService) *SetupHandler {
	return &SetupHandler{
		setupService:   setupService,
		pairService:    pairService,
		archiveService: archiveService,
	}
}

// GetSetup handles GET /api/v1/setup
func (h *SetupHandler) GetSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	doc, err := h.setupService.Get(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// Submit handles POST /api/v1/setup/{step}/submit. The body is the payload
// of the step.
func (h *SetupHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	step, ok := stepParam(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	payload, err := models.DecodePayload(step, raw)
	if err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: services.ErrInvalidPayload.Code})
		return
	}

	doc, err := h.setupService.Submit(ctx, userID, step, payload)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// Approve handles POST /api/v1/setup/{step}/approve
func (h *SetupHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	step, ok := stepParam(w, r)
	if !ok {
		return
	}

	doc, err := h.setupService.Approve(ctx, userID, step)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// Reject handles POST /api/v1/setup/{step}/reject
func (h *SetupHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	step, ok := stepParam(w, r)
	if !ok {
		return
	}

	doc, err := h.setupService.Reject(ctx, userID, step)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// Revise handles POST /api/v1/setup/revise
func (h *SetupHandler) Revise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	doc, err := h.setupService.ReviseAll(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// GetArchive handles GET /api/v1/setup/archive
func (h *SetupHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if h.archiveService == nil {
		respondError(w, "archive is not configured", http.StatusNotFound)
		return
	}

	pair, _, err := h.pairService.FinalizedPair(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	res, err := h.archiveService.LatestURL(ctx, pair.ID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func stepParam(w http.ResponseWriter, r *http.Request) (models.Step, bool) {
	step, err := models.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		respondError(w, err.Error(), http.StatusNotFound)
		return "", false
	}
	return step, true
}
