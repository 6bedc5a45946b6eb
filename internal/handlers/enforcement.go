package handlers

import (
	"net/http"
	"time"

	"matelock-backend/internal/enforcement"
	"matelock-backend/internal/middleware"
	"matelock-backend/internal/services"
)

// maxTZOffsetMinutes is the widest UTC offset in use (UTC+14).
const maxTZOffsetMinutes = 14 * 60

// EnforcementHandler answers what a device should enforce right now
type EnforcementHandler struct {
	pairService  *services.PairService
	setupService *services.SetupService
	breakService *services.BreakService
	now          func() time.Time
}

// NewEnforcementHandler creates a new enforcement handler
func NewEnforcementHandler(pairService *services.PairService, setupService *services.SetupService, breakService *services.BreakService) *EnforcementHandler {
	return &EnforcementHandler{
		pairService:  pairService,
		setupService: setupService,
		breakService: breakService,
		now:          time.Now,
	}
}

// EnforcementRequest carries the device-local flags
type EnforcementRequest struct {
	Authorized  bool `json:"authorized"`
	ManualBlock bool `json:"manual_block"`
	// TZOffsetMinutes is the device's offset from UTC; schedules are local.
	TZOffsetMinutes int `json:"tz_offset_minutes"`
}

// Evaluate handles POST /api/v1/enforcement
func (h *EnforcementHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req EnforcementRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TZOffsetMinutes < -maxTZOffsetMinutes || req.TZOffsetMinutes > maxTZOffsetMinutes {
		respondError(w, "tz_offset_minutes out of range", http.StatusBadRequest)
		return
	}

	pair, _, err := h.pairService.FinalizedPair(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}
	doc, err := h.setupService.Get(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}
	policy, err := h.breakService.GetPolicy(ctx, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	state, err := enforcement.StateFromSetup(enforcement.State{
		ManualBlock: req.ManualBlock,
		PauseUntil:  policy.PauseUntil,
	}, doc, pair, userID)
	if err != nil {
		respondServiceError(w, r, userID, err)
		return
	}

	loc := time.FixedZone("device", req.TZOffsetMinutes*60)
	respondJSON(w, http.StatusOK, enforcement.Evaluate(state, req.Authorized, h.now().In(loc)))
}
