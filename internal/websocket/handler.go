package websocket

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mentorchat/internal/auth"
	"mentorchat/internal/broker"
	"mentorchat/internal/config"
	"mentorchat/pkg/types"
)

// Handler upgrades HTTP requests to live chat and discussion sockets.
// Authentication and authorization run before the upgrade so failures reach
// the client as plain HTTP status codes instead of immediate socket closes.
type Handler struct {
	broker   *broker.Broker
	auth     *auth.Authenticator
	cfg      *config.WebSocketConfig
	maxBytes int64
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket handler.
func NewHandler(b *broker.Broker, a *auth.Authenticator, cfg *config.WebSocketConfig, maxContentLength int) *Handler {
	return &Handler{
		broker: b,
		auth:   a,
		cfg:    cfg,
		// Inbound frames carry JSON envelopes around the content, so allow
		// some slack beyond the content limit itself.
		maxBytes: int64(maxContentLength) + 1024,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleChat serves /ws/chat?connectionId=<id>. The socket carries one
// conversation; messages are persisted and fanned out to the counterpart.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	connectionID := r.URL.Query().Get("connectionId")
	if connectionID == "" {
		http.Error(w, "connectionId query parameter is required", http.StatusBadRequest)
		return
	}

	conversationID, err := h.broker.AuthorizeChat(r.Context(), connectionID, claims.UserID())
	if err != nil {
		h.rejectUpgrade(w, r, err)
		return
	}

	conn := h.upgrade(w, r, claims.UserID())
	if conn == nil {
		return
	}

	att, err := h.broker.JoinChat(conversationID, claims.UserID(), conn)
	if err != nil {
		log.Printf("Failed to join conversation %s for user %s: %v", conversationID, claims.UserID(), err)
		_ = conn.Close()
		return
	}

	log.Printf("User %s joined conversation %s", claims.UserID(), conversationID)
	h.readLoop(r, conn, att)
}

// HandleDiscussions serves /ws/discussions?communityId=<id>. Messages fan
// out to every attendee, sender included, and are not persisted.
func (h *Handler) HandleDiscussions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	communityID := r.URL.Query().Get("communityId")
	if communityID == "" {
		http.Error(w, "communityId query parameter is required", http.StatusBadRequest)
		return
	}

	role, err := h.broker.AuthorizeCommunity(r.Context(), communityID, claims.UserID())
	if err != nil {
		h.rejectUpgrade(w, r, err)
		return
	}

	conn := h.upgrade(w, r, claims.UserID())
	if conn == nil {
		return
	}

	att, err := h.broker.JoinCommunity(communityID, claims.UserID(), role, conn)
	if err != nil {
		log.Printf("Failed to join community %s for user %s: %v", communityID, claims.UserID(), err)
		_ = conn.Close()
		return
	}

	log.Printf("User %s joined community %s as %s", claims.UserID(), communityID, role)
	h.readLoop(r, conn, att)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, err := h.auth.Verify(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (h *Handler) rejectUpgrade(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrForbidden):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, types.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.Printf("Authorization failed for %s: %v", r.URL.Path, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) upgrade(w http.ResponseWriter, r *http.Request, userID string) *Connection {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("WebSocket upgrade failed for user %s: %v", userID, err)
		return nil
	}
	return NewConnection(socket, userID, h.cfg.BufferSize, h.cfg.WriteTimeout, h.cfg.PingInterval)
}

// readLoop pumps inbound frames into the broker until the socket dies. Read
// deadlines ride on pong responses to the writer's pings, so a silent peer
// is cut off after the read timeout.
func (h *Handler) readLoop(r *http.Request, conn *Connection, att *broker.Attachment) {
	defer func() {
		h.broker.Leave(att)
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection for user %s: %v", conn.UserID(), err)
		}
		log.Printf("User %s disconnected from %s", conn.UserID(), r.URL.Path)
	}()

	conn.conn.SetReadLimit(h.maxBytes)
	_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Read error for user %s: %v", conn.UserID(), err)
			}
			return
		}

		inbound, err := types.DecodeInbound(data)
		if err != nil {
			h.reportError(conn, err)
			continue
		}

		if err := h.broker.Publish(r.Context(), att, inbound.Content); err != nil {
			h.reportError(conn, err)
		}
	}
}

// reportError tells the sender their message was rejected. Other peers never
// see a failed publish.
func (h *Handler) reportError(conn *Connection, cause error) {
	event := types.NewSystemEvent("message_rejected", rejectionMessage(cause))
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to report error to user %s: %v", conn.UserID(), err)
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptyContent):
		return "message content cannot be empty"
	case errors.Is(err, types.ErrContentTooLong):
		return "message content is too long"
	case errors.Is(err, types.ErrChannelUnavailable):
		return "message rate limit exceeded, slow down"
	case errors.Is(err, types.ErrNotFound):
		return "conversation no longer exists"
	default:
		return "message could not be delivered"
	}
}
