package handler

import (
	"log"
	"net/http"

	"github.com/IANDYI/health-markers-service/internal/adapters/middleware"
	"github.com/IANDYI/health-markers-service/internal/adapters/websocket"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *websocket.Hub
	authMiddleware *middleware.AuthMiddleware
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *websocket.Hub, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket handles WebSocket upgrade and connection
// Browsers cannot set headers on upgrade requests, so ?token= is accepted too
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identify(r)
	if !ok {
		http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	// Upgrade connection
	conn, err := websocket.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	// Connection gauge is maintained by the hub callbacks (ObserveConnect/ObserveDisconnect)
	if !websocket.NewClient(h.hub, conn, identity.UserID, identity.Role, identity.Email, identity.Name).Serve() {
		log.Printf("WebSocket connection dropped: hub is shutting down")
	}
}

func (h *WebSocketHandler) identify(r *http.Request) (middleware.Identity, bool) {
	if h.authMiddleware == nil || !h.authMiddleware.Enabled() {
		return middleware.AnonymousIdentity(), true
	}

	tokenString := middleware.ExtractBearerToken(r)
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		log.Printf("WebSocket connection rejected: missing token")
		return middleware.Identity{}, false
	}

	identity, _, err := h.authMiddleware.Identify(tokenString)
	if err != nil {
		log.Printf("WebSocket connection rejected: %v", err)
		return middleware.Identity{}, false
	}
	return identity, true
}
