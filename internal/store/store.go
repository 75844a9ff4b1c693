package store

import (
	"context"
	"errors"
	"time"
)

// Document collections
const (
	CollectionRooms    = "game_rooms"
	CollectionLeagues  = "leagues"
	CollectionCounters = "counters"
)

// Counter document ids
const (
	CounterUserID             = "userIdCounter"
	CounterLeaderboardClicks  = "leaderboardClicks"
	CounterLeagueIconClicks   = "leagueIconClicks"
	CounterSinglePlayerClicks = "singlePlayerClicks"
	CounterMultiplayerClicks  = "multiplayerClicks"
	CounterShareClicks        = "shareButtonClicks"
	CounterDailyBonusAwarded  = "dailyBonusAwarded"
)

// ErrDocNotFound is returned when a document does not exist
var ErrDocNotFound = errors.New("document not found")

// Write is one entry of a grouped multi-document write
type Write struct {
	Collection string
	ID         string
	Doc        any
}

// Tx provides transactional document access. All writes made through a Tx
// commit atomically or not at all; the store serializes concurrent
// transactions touching the same document.
type Tx interface {
	Get(ctx context.Context, collection, id string, dest any) error
	Set(ctx context.Context, collection, id string, doc any) error
}

// Store is the durable document store contract. Documents are JSON-shaped,
// keyed by (collection, id).
type Store interface {
	// Get reads a document into dest, returning ErrDocNotFound if absent
	Get(ctx context.Context, collection, id string, dest any) error

	// Set writes a full document, creating it if absent
	Set(ctx context.Context, collection, id string, doc any) error

	// Merge applies a partial document on top of an existing one
	Merge(ctx context.Context, collection, id string, partial any) error

	// Increment atomically adds delta to a numeric top-level field
	Increment(ctx context.Context, collection, id, field string, delta int64) error

	// SetMulti performs a grouped, non-transactional batch of writes
	SetMulti(ctx context.Context, writes []Write) error

	// List iterates every document of a collection in id order
	List(ctx context.Context, collection string, fn func(id string, raw []byte) error) error

	// RunTransaction runs fn inside a serializable read-modify-write
	// transaction, retrying on serialization conflicts
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Counter is the shape of documents in the counters collection
type Counter struct {
	CurrentValue    int64     `json:"current_value,omitempty"`
	TotalClicks     int64     `json:"total_clicks,omitempty"`
	Label           string    `json:"label,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
	LastTriggeredBy string    `json:"last_triggered_by,omitempty"`
}

// NextSequence transactionally increments a sequence counter and returns
// the new value
func NextSequence(ctx context.Context, s Store, id string) (int64, error) {
	var next int64
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var c Counter
		if err := tx.Get(ctx, CollectionCounters, id, &c); err != nil && !errors.Is(err, ErrDocNotFound) {
			return err
		}
		next = c.CurrentValue + 1
		c.CurrentValue = next
		c.LastUpdated = time.Now().UTC()
		return tx.Set(ctx, CollectionCounters, id, c)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// TrackClick transactionally bumps an analytics click counter
func TrackClick(ctx context.Context, s Store, id, label, userID string) error {
	if userID == "" {
		userID = "unknown"
	}
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var c Counter
		if err := tx.Get(ctx, CollectionCounters, id, &c); err != nil && !errors.Is(err, ErrDocNotFound) {
			return err
		}
		c.TotalClicks++
		c.Label = label
		c.LastUpdated = time.Now().UTC()
		c.LastTriggeredBy = userID
		return tx.Set(ctx, CollectionCounters, id, c)
	})
}
