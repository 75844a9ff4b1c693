package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// persistTimeout bounds the background activity write per message
const persistTimeout = 5 * time.Second

// Broadcaster fans a room event out to live connections
type Broadcaster interface {
	BroadcastToRoom(roomID, eventType string, data any)
}

// Relay distributes chat messages to room members. Message bodies are
// ephemeral; only the room's activity aggregates are persisted, off the
// delivery path.
type Relay struct {
	docs      store.Store
	broadcast Broadcaster
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewRelay creates a chat relay
func NewRelay(docs store.Store, broadcast Broadcaster, logger *slog.Logger) *Relay {
	return &Relay{
		docs:      docs,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Send relays a message to the room and records the activity. Messages
// authored as the system user are dropped without broadcast, keeping the
// system author reserved for server-generated events.
func (r *Relay) Send(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	if msg.UserID == domain.SystemUserID {
		r.logger.Warn("dropping chat message with reserved author", "room_id", msg.RoomID)
		return nil, nil
	}
	if msg.RoomID == "" || msg.Text == "" {
		return nil, domain.ErrInvalidRequest
	}

	// Clients may pre-assign an id and timestamp for local echo
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	r.broadcast.BroadcastToRoom(msg.RoomID, "new_message", msg)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		r.persistActivity(pctx, msg.RoomID, msg.Timestamp)
	}()

	return &msg, nil
}

// persistActivity bumps the room's chat aggregates. The transactional path
// is primary; on failure a field-level increment plus merge takes over.
// Neither failure reaches the sender.
func (r *Relay) persistActivity(ctx context.Context, roomID string, at time.Time) {
	err := r.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var room domain.Room
		if err := tx.Get(ctx, store.CollectionRooms, roomID, &room); err != nil {
			return err
		}
		room.ChatActivityCounter++
		room.LastChatActivity = &at
		room.HasMessages = true
		room.UpdatedAt = time.Now().UTC()
		return tx.Set(ctx, store.CollectionRooms, roomID, room)
	})
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrDocNotFound) {
		r.logger.Warn("chat activity for unknown room", "room_id", roomID)
		return
	}

	r.logger.Warn("transactional chat activity update failed, falling back",
		"room_id", roomID, "error", err)

	if err := r.docs.Increment(ctx, store.CollectionRooms, roomID, "chat_activity_counter", 1); err != nil {
		r.logger.Error("chat activity increment failed", "room_id", roomID, "error", err)
		return
	}
	err = r.docs.Merge(ctx, store.CollectionRooms, roomID, map[string]any{
		"last_chat_activity": at,
		"has_messages":       true,
	})
	if err != nil {
		r.logger.Error("chat activity merge failed", "room_id", roomID, "error", err)
	}
}

// Drain waits for in-flight activity writes, used at shutdown
func (r *Relay) Drain() {
	r.wg.Wait()
}
