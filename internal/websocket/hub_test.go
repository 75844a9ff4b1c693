package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestClient(h *Hub) *Client {
	c := &Client{hub: h, send: make(chan []byte, 16)}
	h.register(c)
	return c
}

func drainOne(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	default:
		t.Fatal("expected a queued event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event queued: %s", payload)
	default:
	}
}

func TestBroadcastToRoomReachesMembersOnly(t *testing.T) {
	h := newTestHub()
	inRoom := newTestClient(h)
	outside := newTestClient(h)

	h.joinRoom(inRoom, "R1")

	h.BroadcastToRoom("R1", "new_message", map[string]string{"text": "hi"})

	event := drainOne(t, inRoom)
	assert.Equal(t, "new_message", event.Type)
	assertEmpty(t, outside)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)

	h.joinRoom(c, "R1")
	h.leaveRoom(c, "R1")

	h.BroadcastToRoom("R1", "new_message", nil)
	assertEmpty(t, c)
}

func TestSendToUserMostRecentConnectionWins(t *testing.T) {
	h := newTestHub()
	first := newTestClient(h)
	second := newTestClient(h)

	h.identify(first, "u1", "Ada")
	h.identify(second, "u1", "Ada")

	delivered := h.SendToUser("u1", "game_invitation", map[string]string{"room_id": "R1"})
	assert.True(t, delivered)

	event := drainOne(t, second)
	assert.Equal(t, "game_invitation", event.Type)
	assertEmpty(t, first)
}

func TestSendToUserNotConnected(t *testing.T) {
	h := newTestHub()
	assert.False(t, h.SendToUser("ghost", "game_invitation", nil))
}

func TestUnregisterReportsOccupiedRooms(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)

	h.identify(c, "u1", "Ada")
	h.joinRoom(c, "R1")
	h.joinRoom(c, "R2")

	occupied := h.unregister(c)
	assert.ElementsMatch(t, []string{"R1", "R2"}, occupied)
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.SendToUser("u1", "pong", nil))

	// Unregistering twice is harmless
	assert.Nil(t, h.unregister(c))
}

func TestUnregisterKeepsOtherUsersIdentity(t *testing.T) {
	h := newTestHub()
	old := newTestClient(h)
	current := newTestClient(h)

	h.identify(old, "u1", "Ada")
	h.identify(current, "u1", "Ada")

	// The superseded connection dropping must not evict the newer one
	h.unregister(old)
	assert.True(t, h.SendToUser("u1", "pong", nil))
}

func TestBroadcastAll(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.BroadcastAll("online_users_count", map[string]int{"count": 2})

	assert.Equal(t, "online_users_count", drainOne(t, a).Type)
	assert.Equal(t, "online_users_count", drainOne(t, b).Type)
}

func TestIdentifyHandoffIsSafeUnderConcurrentReads(t *testing.T) {
	h := newTestHub()
	old := newTestClient(h)

	h.identify(old, "u1", "Ada")
	h.joinRoom(old, "R1")

	// The superseded connection keeps reading its identity while newer
	// connections take over the user binding
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			old.identity()
			h.RoomMemberIDs("R1")
		}
	}()
	for i := 0; i < 200; i++ {
		h.identify(old, "u1", "Ada")
		next := newTestClient(h)
		h.identify(next, "u1", "Ada")
		h.unregister(next)
	}
	<-done

	userID, _ := old.identity()
	assert.Empty(t, userID)
}

func TestRoomMemberIDsSkipsAnonymous(t *testing.T) {
	h := newTestHub()
	named := newTestClient(h)
	anon := newTestClient(h)

	h.identify(named, "u1", "Ada")
	h.joinRoom(named, "R1")
	h.joinRoom(anon, "R1")

	assert.Equal(t, []string{"u1"}, h.RoomMemberIDs("R1"))
}
