package handlers

import (
	"net/http"

	"matelock-backend/internal/middleware"
	"matelock-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// BreakHandler handles break requests and pauses
type BreakHandler struct {
	breakService *services.BreakService
}

// NewBreakHandler creates a new break handler
func NewBreakHandler(breakService *services.BreakService) *BreakHandler {
	return &BreakHandler{breakService: breakService}
}

// RequestBreak handles POST /api/v1/breaks
func (h *BreakHandler) RequestBreak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	req, err := h.breakService.RequestBreak(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusCreated, req)
}

// CancelRequest handles DELETE /api/v1/breaks
func (h *BreakHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.breakService.CancelBreakRequest(ctx, userID); err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRequests handles GET /api/v1/breaks
func (h *BreakHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requests, err := h.breakService.ListRequests(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	type item struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
		At     int64  `json:"requested_at"`
	}
	out := make([]item, 0, len(requests))
	for _, req := range requests {
		out = append(out, item{UserID: req.UserID, Status: string(req.Status), At: req.RequestedAt.Unix()})
	}
	respondJSON(w, http.StatusOK, map[string]any{"requests": out})
}

// Approve handles POST /api/v1/breaks/{user_id}/approve
func (h *BreakHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requesterID := chi.URLParam(r, "user_id")

	policy, err := h.breakService.ApproveBreakRequest(ctx, userID, requesterID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, policy)
}

// Reject handles POST /api/v1/breaks/{user_id}/reject
func (h *BreakHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requesterID := chi.URLParam(r, "user_id")

	if err := h.breakService.RejectBreakRequest(ctx, userID, requesterID); err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelPause handles DELETE /api/v1/breaks/pause
func (h *BreakHandler) CancelPause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	policy, err := h.breakService.CancelBreak(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, policy)
}

// GetPolicy handles GET /api/v1/breaks/policy
func (h *BreakHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	policy, err := h.breakService.GetPolicy(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, policy)
}
