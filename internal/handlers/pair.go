package handlers

import (
	"net/http"
	"time"

	"matelock-backend/internal/middleware"
	"matelock-backend/internal/models"
	"matelock-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PairHandler handles pair-related HTTP requests
type PairHandler struct {
	pairService *services.PairService
}

// NewPairHandler creates a new pair handler
func NewPairHandler(pairService *services.PairService) *PairHandler {
	return &PairHandler{
		pairService: pairService,
	}
}

// JoinPairRequest represents the request body for joining a pair
type JoinPairRequest struct {
	InviteCode string `json:"invite_code"`
}

// PairResponse is a pair as seen by one of its members
type PairResponse struct {
	ID          string      `json:"id"`
	Role        models.Role `json:"role"`
	MemberA     string      `json:"member_a"`
	MemberB     string      `json:"member_b,omitempty"`
	PartnerID   string      `json:"partner_id,omitempty"`
	InviteCode  string      `json:"invite_code,omitempty"`
	FinalizedAt *time.Time  `json:"finalized_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func newPairResponse(pair *models.Pair, userID string) PairResponse {
	role, _ := pair.RoleOf(userID)
	partnerID, _ := pair.PartnerOf(userID)
	return PairResponse{
		ID:          pair.ID,
		Role:        role,
		MemberA:     pair.MemberA,
		MemberB:     pair.MemberB,
		PartnerID:   partnerID,
		InviteCode:  pair.InviteCode,
		FinalizedAt: pair.FinalizedAt,
		CreatedAt:   pair.CreatedAt,
	}
}

// CreatePair handles POST /api/v1/pairs
func (h *PairHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	pair, err := h.pairService.CreatePair(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusCreated, newPairResponse(pair, userID))
}

// JoinPair handles POST /api/v1/pairs/join
func (h *PairHandler) JoinPair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req JoinPairRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pair, err := h.pairService.JoinPair(ctx, userID, req.InviteCode)
	if err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to join pair")
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, newPairResponse(pair, userID))
}

// GetCurrentPair handles GET /api/v1/pairs/current
func (h *PairHandler) GetCurrentPair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	pair, err := h.pairService.CurrentPair(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	respondJSON(w, http.StatusOK, newPairResponse(pair, userID))
}
