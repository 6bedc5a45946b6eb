package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// PartnerResolver finds the partner of a user
type PartnerResolver interface {
	PartnerID(ctx context.Context, userID string) (string, error)
}

// WSConn serializes writes to one WebSocket connection. gorilla/websocket
// allows a single concurrent writer.
type WSConn struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

// Send writes message as JSON
func (c *WSConn) Send(message WSMessage) error {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*WSConn
	partners    PartnerResolver
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(partners PartnerResolver) *WSHub {
	return &WSHub{
		connections: make(map[string]*WSConn),
		partners:    partners,
	}
}

// Register registers a new WebSocket connection for a user, replacing any
// previous one.
func (h *WSHub) Register(userID string, conn *websocket.Conn) *WSConn {
	c := &WSConn{userID: userID, conn: conn}

	h.mu.Lock()
	if existing, ok := h.connections[userID]; ok {
		existing.Close()
	}
	h.connections[userID] = c
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")

	go h.announcePresence(userID, true)
	return c
}

// Unregister removes c if it is still the user's current connection
func (h *WSHub) Unregister(c *WSConn) {
	h.mu.Lock()
	current, ok := h.connections[c.userID]
	removed := ok && current == c
	if removed {
		delete(h.connections, c.userID)
	}
	h.mu.Unlock()

	c.Close()
	if !removed {
		return
	}
	log.Info().Str("user_id", c.userID).Msg("WebSocket connection unregistered")
	go h.announcePresence(c.userID, false)
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	c, ok := h.connections[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}
	if err := c.Send(message); err != nil {
		h.Unregister(c)
		return err
	}
	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[userID]
	return ok
}

// announcePresence tells the partner that userID came online or went away,
// and on connect tells userID whether the partner is online.
func (h *WSHub) announcePresence(userID string, online bool) {
	if h.partners == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	partnerID, err := h.partners.PartnerID(ctx, userID)
	if err != nil || partnerID == "" {
		return
	}
	h.NotifyPartnerStatus(partnerID, online)

	if online {
		partnerOnline := h.IsOnline(partnerID)
		if err := h.SendToUser(userID, WSMessage{Type: "partner_status", Online: &partnerOnline}); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Failed to send partner status")
		}
	}
}

// NotifyPartnerStatus tells partnerID whether their partner is online
func (h *WSHub) NotifyPartnerStatus(partnerID string, online bool) {
	if partnerID == "" || !h.IsOnline(partnerID) {
		return
	}

	message := WSMessage{
		Type:   "partner_status",
		Online: &online,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Error().
			Err(err).
			Str("user_id", partnerID).
			Msg("Failed to notify partner status")
	}
}
