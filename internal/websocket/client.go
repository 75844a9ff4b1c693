package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/chat"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/game"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/presence"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period, must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Outbound buffer per connection
	sendBufferSize = 256

	// handlerTimeout bounds the work a single inbound event may do
	handlerTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server upgrades HTTP connections and dispatches their events to the
// game, chat and presence services
type Server struct {
	hub      *Hub
	game     *game.Service
	chat     *chat.Relay
	presence *presence.Tracker
	logger   *slog.Logger
}

// NewServer creates a websocket server around the hub
func NewServer(hub *Hub, gameSvc *game.Service, chatRelay *chat.Relay, tracker *presence.Tracker, logger *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		game:     gameSvc,
		chat:     chatRelay,
		presence: tracker,
		logger:   logger,
	}
}

// Hub exposes the underlying hub for direct event delivery
func (s *Server) Hub() *Hub {
	return s.hub
}

// BroadcastRoomState re-reads the authoritative room document and pushes a
// players_updated snapshot to the room, so receivers never act on a stale
// in-memory copy
func (s *Server) BroadcastRoomState(ctx context.Context, roomID string) error {
	room, err := s.game.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	s.hub.BroadcastToRoom(roomID, "players_updated", map[string]any{
		"room_id":    room.RoomID,
		"players":    room.Players,
		"game_state": room.GameState,
	})
	return nil
}

// ServeWS handles websocket upgrade requests
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		server: s,
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

// Client is a single websocket connection
type Client struct {
	server *Server
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte

	// identity is written by the hub when a newer connection claims the
	// same user, so reads from the pump goroutines must take the lock
	mu          sync.RWMutex
	userID      string
	displayName string
}

// identity returns the connection's current user binding
func (c *Client) identity() (userID, displayName string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.displayName
}

func (c *Client) setIdentity(userID, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.displayName = displayName
}

// clearUserID strips the user binding from a superseded connection
func (c *Client) clearUserID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = ""
}

// readPump reads inbound events until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				userID, _ := c.identity()
				c.server.logger.Warn("websocket read error", "user_id", userID, "error", err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			userID, _ := c.identity()
			c.server.logger.Warn("malformed websocket event", "user_id", userID, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		c.handleEvent(ctx, event)
		cancel()
	}
}

// writePump pushes queued payloads and keepalive pings to the peer
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

// disconnect tears the client out of the hub, announces the departure to
// its rooms and flips the user offline
func (c *Client) disconnect() {
	occupied := c.hub.unregister(c)
	userID, displayName := c.identity()
	for _, roomID := range occupied {
		c.hub.BroadcastToRoom(roomID, "user_left", map[string]any{
			"room_id":      roomID,
			"user_id":      userID,
			"display_name": displayName,
			"timestamp":    time.Now().UTC(),
		})
	}

	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := c.server.presence.SetOffline(ctx, userID); err != nil {
		c.server.logger.Warn("marking user offline failed", "user_id", userID, "error", err)
	}
	c.broadcastOnlineCount(ctx)
}

func (c *Client) broadcastOnlineCount(ctx context.Context) {
	count, err := c.server.presence.OnlineCount(ctx)
	if err != nil {
		c.server.logger.Warn("counting online users failed", "error", err)
		return
	}
	c.hub.BroadcastAll("online_users_count", map[string]any{"count": count})
}

type identifyPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

type messagePayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

type gameStatePayload struct {
	RoomID    string           `json:"room_id"`
	GameState domain.GameState `json:"game_state"`
	Players   []domain.Player  `json:"players,omitempty"`
}

// handleEvent dispatches one inbound event
func (c *Client) handleEvent(ctx context.Context, event Event) {
	switch event.Type {
	case "identify_user":
		c.handleIdentify(ctx, event.Data)
	case "join_room":
		c.handleJoinRoom(ctx, event.Data)
	case "leave_room":
		c.handleLeaveRoom(event.Data)
	case "send_message":
		c.handleSendMessage(ctx, event.Data)
	case "update_progress":
		c.handleProgress(ctx, event.Data)
	case "update_game_state":
		c.handleGameState(ctx, event.Data)
	case "ping":
		c.hub.sendToClient(c, "pong", nil)
	default:
		c.server.logger.Debug("unknown websocket event", "type", event.Type)
	}
}

func (c *Client) handleIdentify(ctx context.Context, data json.RawMessage) {
	var payload identifyPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		c.sendError("identify_user requires a user_id")
		return
	}

	c.hub.identify(c, payload.UserID, payload.DisplayName)

	if err := c.server.presence.SetOnline(ctx, payload.UserID); err != nil {
		c.server.logger.Warn("marking user online failed", "user_id", payload.UserID, "error", err)
	}
	c.broadcastOnlineCount(ctx)
}

func (c *Client) handleJoinRoom(ctx context.Context, data json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		c.sendError("join_room requires a room_id")
		return
	}
	userID, displayName := c.identity()
	if userID == "" {
		c.sendError("identify before joining a room")
		return
	}

	if _, err := c.server.game.JoinRoom(ctx, payload.RoomID, userID, displayName); err != nil {
		c.sendError(err.Error())
		return
	}

	c.hub.joinRoom(c, payload.RoomID)
	c.hub.BroadcastToRoom(payload.RoomID, "user_joined", map[string]any{
		"room_id":      payload.RoomID,
		"user_id":      userID,
		"display_name": displayName,
		"timestamp":    time.Now().UTC(),
	})
	if err := c.server.BroadcastRoomState(ctx, payload.RoomID); err != nil {
		c.server.logger.Warn("broadcasting room state failed", "room_id", payload.RoomID, "error", err)
	}
}

func (c *Client) handleLeaveRoom(data json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		c.sendError("leave_room requires a room_id")
		return
	}

	// Leaving only drops the live connection; the seat in the room
	// document is permanent
	userID, displayName := c.identity()
	c.hub.leaveRoom(c, payload.RoomID)
	c.hub.BroadcastToRoom(payload.RoomID, "user_left", map[string]any{
		"room_id":      payload.RoomID,
		"user_id":      userID,
		"display_name": displayName,
		"timestamp":    time.Now().UTC(),
	})
}

func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var payload messagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError("malformed send_message payload")
		return
	}
	userID, displayName := c.identity()
	if userID == "" {
		c.sendError("identify before sending messages")
		return
	}

	_, err := c.server.chat.Send(ctx, domain.ChatMessage{
		RoomID:      payload.RoomID,
		UserID:      userID,
		DisplayName: displayName,
		Text:        payload.Text,
	})
	if err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) handleProgress(ctx context.Context, data json.RawMessage) {
	var update domain.ProgressUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		c.sendError("malformed update_progress payload")
		return
	}
	if update.UserID == "" {
		update.UserID, _ = c.identity()
	}

	result, err := c.server.game.UpdatePlayerProgress(ctx, update)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if !result.Accepted {
		return
	}

	c.hub.BroadcastToRoom(update.RoomID, "update_player_progress", map[string]any{
		"room_id":          update.RoomID,
		"user_id":          update.UserID,
		"score":            update.Score,
		"current_question": update.CurrentQuestion,
	})
	if result.Completed {
		c.hub.BroadcastToRoom(update.RoomID, "game_completed", result.Room)
	}
}

func (c *Client) handleGameState(ctx context.Context, data json.RawMessage) {
	var payload gameStatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		c.sendError("malformed update_game_state payload")
		return
	}

	result, err := c.server.game.UpdateRoomState(ctx, payload.RoomID, payload.GameState, payload.Players)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.hub.sendToClient(c, "game_state_error", map[string]any{
				"room_id": payload.RoomID,
				"reason":  "room not found",
			})
			return
		}
		c.sendError(err.Error())
		return
	}

	if !result.Changed {
		c.hub.sendToClient(c, "game_state_error", map[string]any{
			"room_id": payload.RoomID,
			"reason":  result.Reason,
		})
		return
	}

	c.hub.BroadcastToRoom(payload.RoomID, "game_state_updated", map[string]any{
		"room_id":    payload.RoomID,
		"game_state": result.Room.GameState,
	})
	if result.Room.GameState == domain.GameStateCompleted {
		c.hub.BroadcastToRoom(payload.RoomID, "game_completed", result.Room)
	}
}

func (c *Client) sendError(message string) {
	c.hub.sendToClient(c, "error", map[string]any{"message": message})
}
