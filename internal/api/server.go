package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"mentorchat/internal/auth"
	"mentorchat/internal/broker"
	"mentorchat/pkg/interfaces"
	"mentorchat/pkg/types"
)

type contextKey string

const claimsKey contextKey = "claims"

// Server exposes the REST surface: connection listing, message history, and
// health. Every chat endpoint requires a bearer token.
type Server struct {
	directory    interfaces.ConnectionDirectory
	store        interfaces.MessageStore
	broker       *broker.Broker
	auth         *auth.Authenticator
	defaultLimit int
	maxLimit     int
}

// NewServer creates the REST handler set.
func NewServer(directory interfaces.ConnectionDirectory, store interfaces.MessageStore, b *broker.Broker, a *auth.Authenticator, defaultLimit, maxLimit int) *Server {
	return &Server{
		directory:    directory,
		store:        store,
		broker:       b,
		auth:         a,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// RegisterRoutes attaches all REST endpoints to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/connections", s.withMiddleware(s.requireAuth(s.handleConnections)))
	mux.HandleFunc("/chat/messages", s.withMiddleware(s.requireAuth(s.handleMessages)))
	mux.HandleFunc("/health", s.withMiddleware(s.handleHealth))
}

// handleConnections returns the caller's accepted connections with
// last-message previews, most recently active first.
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	claims := claimsFromContext(r.Context())
	summaries, err := s.directory.ListConnections(r.Context(), claims.UserID())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connections": summaries,
	})
}

// handleMessages returns one page of conversation history, newest first.
// cursor is the smallest message ID of the previous page; omitted, the page
// starts from the latest message.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	connectionID := r.URL.Query().Get("connectionId")
	if connectionID == "" {
		s.writeError(w, http.StatusBadRequest, "connectionId query parameter is required")
		return
	}

	limit := s.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > s.maxLimit {
			n = s.maxLimit
		}
		limit = n
	}

	var cursor *int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "cursor must be a positive integer")
			return
		}
		cursor = &n
	}

	claims := claimsFromContext(r.Context())
	conversationID, err := s.directory.ResolveConversation(r.Context(), connectionID, claims.UserID())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	page, err := s.store.FetchPage(r.Context(), conversationID, cursor, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":   page.Messages,
		"nextCursor": page.NextCursor,
		"hasEarlier": page.NextCursor != nil,
	})
}

// handleHealth reports store reachability and broker load. No auth so load
// balancers can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := http.StatusOK
	dbStatus := "ok"
	if err := s.store.HealthCheck(r.Context()); err != nil {
		log.Printf("Health check failed: %v", err)
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	stats := s.broker.Stats()
	s.writeJSON(w, status, map[string]interface{}{
		"status":   dbStatus,
		"channels": stats.Channels,
		"peers":    stats.Peers,
	})
}

// withMiddleware applies CORS headers and the JSON content type.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth verifies the bearer token and stores the claims in the request
// context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.Verify(auth.BearerFromHeader(r))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		s.writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, types.ErrForbidden):
		s.writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, types.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrContentTooLong),
		errors.Is(err, types.ErrInvalidUserID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrChannelUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		log.Printf("Internal error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
