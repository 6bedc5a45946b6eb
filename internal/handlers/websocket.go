package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"matelock-backend/internal/docstore"
	"matelock-backend/internal/middleware"
	"matelock-backend/internal/repository"
	"matelock-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients send no Origin
	},
}

// Snapshot message types.
const (
	msgSetup        = "setup"
	msgPolicy       = "device_policy"
	msgBreakRequest = "break_request"
)

// SnapshotData is the payload of a pushed document snapshot
type SnapshotData struct {
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Version  int64  `json:"version"`
	Document any    `json:"document,omitempty"`
}

type decodeFunc func(*docstore.Snapshot) (any, error)

// WebSocketHandler streams document snapshots and presence to clients
type WebSocketHandler struct {
	hub          *services.WSHub
	auth         services.Authenticator
	pairService  *services.PairService
	setupService *services.SetupService
	breakService *services.BreakService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	auth services.Authenticator,
	pairService *services.PairService,
	setupService *services.SetupService,
	breakService *services.BreakService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		auth:         auth,
		pairService:  pairService,
		setupService: setupService,
		breakService: breakService,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.auth)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := identity.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	c := h.hub.Register(userID, conn)
	defer h.hub.Unregister(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := h.subscribe(ctx, c, userID)
	defer func() { stop() }()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.sendError(c, "Invalid message format")
			continue
		}

		switch msg.Type {
		case "ping":
			if err := c.Send(services.WSMessage{Type: "pong"}); err != nil {
				return
			}
		case "resubscribe":
			// Pairing changed: drop every watch and start over.
			stop()
			stop = h.subscribe(ctx, c, userID)
		default:
			h.sendError(c, "Unknown message type")
		}
	}
}

// subscribe sends the pair status and starts forwarding the documents the
// user can see. The returned func stops forwarding and waits for it.
func (h *WebSocketHandler) subscribe(parent context.Context, c *services.WSConn, userID string) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	stop := func() {
		cancel()
		wg.Wait()
	}

	pair, partnerID, err := h.pairService.FinalizedPair(ctx, userID)
	if err != nil {
		status := map[string]any{"has_pair": false}
		if current, err := h.pairService.CurrentPair(ctx, userID); err == nil {
			status["pair_id"] = current.ID
			status["invite_code"] = current.InviteCode
		}
		h.send(c, services.WSMessage{Type: "pair_status", Data: status})
		return stop
	}

	h.send(c, services.WSMessage{Type: "pair_status", Data: map[string]any{
		"has_pair":   true,
		"pair_id":    pair.ID,
		"partner_id": partnerID,
	}})
	partnerOnline := h.hub.IsOnline(partnerID)
	h.send(c, services.WSMessage{Type: "partner_status", Online: &partnerOnline})

	start := func(kind string, sub *docstore.Subscription, err error, decode decodeFunc) {
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("kind", kind).Msg("Failed to subscribe")
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.forward(ctx, c, kind, sub, decode)
		}()
	}

	setupSub, _, err := h.setupService.Subscribe(ctx, userID)
	start(msgSetup, setupSub, err, func(s *docstore.Snapshot) (any, error) {
		return repository.DecodeSetup(s)
	})
	policySub, err := h.breakService.WatchPolicy(ctx, userID)
	start(msgPolicy, policySub, err, func(s *docstore.Snapshot) (any, error) {
		return repository.DecodePolicy(s)
	})
	for _, memberID := range []string{userID, partnerID} {
		sub, err := h.breakService.WatchRequest(ctx, userID, memberID)
		start(msgBreakRequest, sub, err, func(s *docstore.Snapshot) (any, error) {
			return repository.DecodeBreakRequest(s)
		})
	}

	return stop
}

// forward pushes every snapshot of sub to c until ctx is done
func (h *WebSocketHandler) forward(ctx context.Context, c *services.WSConn, kind string, sub *docstore.Subscription, decode decodeFunc) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			data := SnapshotData{Path: snap.Path, Exists: snap.Exists, Version: snap.Version}
			if snap.Exists {
				doc, err := decode(snap)
				if err != nil {
					log.Error().Err(err).Str("path", snap.Path).Msg("Failed to decode snapshot")
					continue
				}
				data.Document = doc
			}
			if err := c.Send(services.WSMessage{Type: kind, Data: data}); err != nil {
				log.Debug().Err(err).Str("path", snap.Path).Msg("Failed to push snapshot")
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(c *services.WSConn, msg services.WSMessage) {
	if err := c.Send(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}

// sendError sends an error message to the WebSocket connection
func (h *WebSocketHandler) sendError(c *services.WSConn, message string) {
	h.send(c, services.WSMessage{Type: "error", Message: message})
}
