package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// RoleAdmin receives prediction notifications
const RoleAdmin = "ADMIN"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a websocket connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    string
	userRole  string
	userEmail string
	userName  string
}

// NewClient wraps an upgraded connection for the given user
func NewClient(hub *Hub, conn *websocket.Conn, userID, role, email, name string) *Client {
	if name == "" {
		name = userID
	}
	if email == "" {
		email = "unknown"
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		userRole:  role,
		userEmail: email,
		userName:  name,
	}
}

// Serve registers the client and starts its read and write pumps.
// It returns false, with the connection closed, when the hub has stopped.
func (c *Client) Serve() bool {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		c.conn.Close()
		return false
	}

	go c.writePump()
	go c.readPump()
	return true
}

// PredictionNotification is pushed to connected ADMIN users for abnormal predictions
type PredictionNotification struct {
	Type           string                      `json:"type"`
	PredictionID   uuid.UUID                   `json:"prediction_id"`
	RequestedBy    string                      `json:"requested_by"`
	Source         string                      `json:"source"`
	Category       domain.Category             `json:"category"`
	Recommendation domain.RecommendationRecord `json:"recommendation"`
	CreatedAt      time.Time                   `json:"created_at"`
}

// Hub maintains the set of active clients and pushes notifications to them
type Hub struct {
	clients      map[*Client]bool
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	mu           sync.RWMutex
	adminClients map[*Client]bool
	onSend       func(delivered int)
	onJoin       func(role string)
	onLeave      func(role string)
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		adminClients: make(map[*Client]bool),
	}
}

// OnNotify sets a callback invoked with the number of admins reached per notification
func (h *Hub) OnNotify(fn func(delivered int)) {
	h.mu.Lock()
	h.onSend = fn
	h.mu.Unlock()
}

// OnConnect sets a callback invoked with the role of every registered client.
// It runs on the hub loop, so it always precedes the matching OnDisconnect call.
func (h *Hub) OnConnect(fn func(role string)) {
	h.mu.Lock()
	h.onJoin = fn
	h.mu.Unlock()
}

// OnDisconnect sets a callback invoked with the role of every client that leaves
func (h *Hub) OnDisconnect(fn func(role string)) {
	h.mu.Lock()
	h.onLeave = fn
	h.mu.Unlock()
}

// Run starts the hub's main loop and blocks until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.onJoin != nil {
				h.onJoin(client.userRole)
			}
			if client.userRole == RoleAdmin {
				h.adminClients[client] = true
				log.Printf("✅ Admin connected: %s (%s) - UserID: %s (Total: %d)",
					client.userName, client.userEmail, client.userID, len(h.adminClients))
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				if client.userRole == RoleAdmin {
					log.Printf("Admin disconnected: %s (%s) - UserID: %s (Total: %d)",
						client.userName, client.userEmail, client.userID, len(h.adminClients)-1)
				}
				h.removeLocked(client)
			}
			h.mu.Unlock()
		}
	}
}

// removeLocked drops a client and closes its send channel; h.mu must be held
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.adminClients, client)
	close(client.send)
	if h.onLeave != nil {
		h.onLeave(client.userRole)
	}
}

// BroadcastToAdmins sends message only to connected ADMIN users
// Returns the number of admins the message was queued for
func (h *Hub) BroadcastToAdmins(message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.adminClients {
		select {
		case client.send <- message:
			sent++
		default:
			log.Printf("Failed to send to admin %s, removing", client.userName)
			h.removeLocked(client)
		}
	}

	if sent > 0 {
		log.Printf("📢 Broadcasted notification to %d admins", sent)
	} else {
		log.Printf("No connected admins to receive notification")
	}

	if h.onSend != nil {
		h.onSend(sent)
	}
	return sent
}

// NotifyPrediction pushes an abnormal prediction to connected admins
// Implements PredictionNotifier interface
func (h *Hub) NotifyPrediction(prediction *domain.Prediction) {
	message, err := json.Marshal(PredictionNotification{
		Type:           "prediction",
		PredictionID:   prediction.ID,
		RequestedBy:    prediction.RequestedBy,
		Source:         prediction.Source,
		Category:       prediction.Category,
		Recommendation: prediction.Recommendation,
		CreatedAt:      prediction.CreatedAt,
	})
	if err != nil {
		log.Printf("Failed to marshal prediction notification: %v", err)
		return
	}

	h.BroadcastToAdmins(message)
}

// GetConnectedAdminCount returns number of connected ADMIN users
func (h *Hub) GetConnectedAdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.adminClients)
}

// GetConnectedCount returns number of connected users
func (h *Hub) GetConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One notification per frame so clients can parse each as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrade upgrades HTTP connection to WebSocket
func Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, responseHeader)
}

// Ensure Hub implements the interface
var _ ports.PredictionNotifier = (*Hub)(nil)
