package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is the wire envelope for every websocket message, inbound and
// outbound
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// marshalEvent encodes an outbound event envelope
func marshalEvent(eventType string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Event{Type: eventType, Data: raw})
}

// Hub tracks live connections, their user identities and their room
// membership, and fans events out to them
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	byUser  map[string]*Client
	rooms   map[string]map[*Client]bool
	logger  *slog.Logger
}

// NewHub creates a new connection hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		byUser:  make(map[string]*Client),
		rooms:   make(map[string]map[*Client]bool),
		logger:  logger,
	}
}

// register adds a fresh, not yet identified connection
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.logger.Debug("client connected", "clients", len(h.clients))
}

// unregister drops a connection from every room and from the identity map.
// It returns the rooms the client occupied so the caller can announce the
// departure.
func (h *Hub) unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return nil
	}
	delete(h.clients, c)
	close(c.send)

	userID, _ := c.identity()
	if userID != "" && h.byUser[userID] == c {
		delete(h.byUser, userID)
	}

	var occupied []string
	for roomID, members := range h.rooms {
		if members[c] {
			delete(members, c)
			occupied = append(occupied, roomID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	h.logger.Debug("client disconnected", "user_id", userID, "clients", len(h.clients))
	return occupied
}

// identify binds a connection to a user id. The newest connection wins; a
// previous connection for the same user loses its identity but stays open.
func (h *Hub) identify(c *Client, userID, displayName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.byUser[userID]; ok && old != c {
		old.clearUserID()
	}
	c.setIdentity(userID, displayName)
	h.byUser[userID] = c
}

// joinRoom adds the connection to a room's live membership
func (h *Hub) joinRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[roomID] = members
	}
	members[c] = true
}

// leaveRoom removes the connection from a room's live membership
func (h *Hub) leaveRoom(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// send queues a payload on one client, dropping the client if its buffer
// is full
func (h *Hub) send(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		userID, _ := c.identity()
		h.logger.Warn("dropping slow client", "user_id", userID)
		go c.conn.Close()
	}
}

// BroadcastToRoom sends an event to every live member of a room
func (h *Hub) BroadcastToRoom(roomID, eventType string, data any) {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		h.logger.Error("encoding broadcast failed", "event", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		h.send(c, payload)
	}
}

// BroadcastAll sends an event to every connected client
func (h *Hub) BroadcastAll(eventType string, data any) {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		h.logger.Error("encoding broadcast failed", "event", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.send(c, payload)
	}
}

// SendToUser delivers an event to the user's most recent identified
// connection. It reports whether a connection was found.
func (h *Hub) SendToUser(userID, eventType string, data any) bool {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		h.logger.Error("encoding direct event failed", "event", eventType, "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byUser[userID]
	if !ok {
		return false
	}
	h.send(c, payload)
	return true
}

// sendToClient delivers an event to one specific connection
func (h *Hub) sendToClient(c *Client, eventType string, data any) {
	payload, err := marshalEvent(eventType, data)
	if err != nil {
		h.logger.Error("encoding event failed", "event", eventType, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.send(c, payload)
}

// RoomMemberIDs returns the identified user ids with a live connection in
// the room
func (h *Hub) RoomMemberIDs(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for c := range h.rooms[roomID] {
		if userID, _ := c.identity(); userID != "" {
			ids = append(ids, userID)
		}
	}
	return ids
}

// ConnectedUserIDs returns every identified user id with a live connection
func (h *Hub) ConnectedUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of live connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
