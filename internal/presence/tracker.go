package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
)

const (
	// keyOnlineSet indexes the currently online user ids
	keyOnlineSet = "presence:online"
	// keyUserPrefix prefixes per-user status hashes
	keyUserPrefix = "presence:user:"

	// staleTTL bounds how long a user stays online without a heartbeat
	staleTTL = 5 * time.Minute
)

// Status values stored in the per-user hash
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Tracker maintains realtime online/offline status in Redis
type Tracker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewTracker creates a Redis-backed presence tracker
func NewTracker(cfg *config.RedisConfig, logger *slog.Logger) (*Tracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Tracker{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (t *Tracker) Close() error {
	return t.client.Close()
}

func userKey(userID string) string {
	return keyUserPrefix + userID
}

// SetOnline marks a user online and refreshes their activity timestamp
func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := t.client.Pipeline()
	pipe.HSet(ctx, userKey(userID), "status", StatusOnline, "last_active", now)
	pipe.Expire(ctx, userKey(userID), staleTTL)
	pipe.SAdd(ctx, keyOnlineSet, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking user online: %w", err)
	}
	return nil
}

// Heartbeat refreshes an online user's activity timestamp and TTL
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	return t.SetOnline(ctx, userID)
}

// SetOffline marks a user offline, recording when they were last seen
func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := t.client.Pipeline()
	pipe.HSet(ctx, userKey(userID), "status", StatusOffline, "last_active", now)
	pipe.Expire(ctx, userKey(userID), staleTTL)
	pipe.SRem(ctx, keyOnlineSet, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking user offline: %w", err)
	}
	return nil
}

// OnlineUsers returns the ids of users currently online, pruning members
// whose status hash has expired without an offline event
func (t *Tracker) OnlineUsers(ctx context.Context) ([]string, error) {
	members, err := t.client.SMembers(ctx, keyOnlineSet).Result()
	if err != nil {
		return nil, fmt.Errorf("listing online users: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := t.client.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, id := range members {
		checks[i] = pipe.Exists(ctx, userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("checking online users: %w", err)
	}

	online := make([]string, 0, len(members))
	var stale []any
	for i, id := range members {
		if checks[i].Val() > 0 {
			online = append(online, id)
		} else {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		if err := t.client.SRem(ctx, keyOnlineSet, stale...).Err(); err != nil {
			t.logger.Warn("pruning stale presence entries failed", "error", err)
		}
	}
	return online, nil
}

// OnlineCount returns the number of users currently online
func (t *Tracker) OnlineCount(ctx context.Context) (int64, error) {
	online, err := t.OnlineUsers(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(online)), nil
}

// LastActive returns a user's status and last activity timestamp
func (t *Tracker) LastActive(ctx context.Context, userID string) (status string, lastActive time.Time, err error) {
	fields, err := t.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading presence: %w", err)
	}
	if len(fields) == 0 {
		return StatusOffline, time.Time{}, nil
	}
	ts, _ := time.Parse(time.RFC3339, fields["last_active"])
	return fields["status"], ts, nil
}
