package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/game"
)

// ProgressApplier applies a progress report to its room
type ProgressApplier interface {
	UpdatePlayerProgress(ctx context.Context, update domain.ProgressUpdate) (*game.ProgressResult, error)
}

// RoomBroadcaster fans room events out to live connections
type RoomBroadcaster interface {
	BroadcastToRoom(roomID, eventType string, data any)
}

// Consumer ingests progress reports from Kafka and applies them through
// the game service, so device clients can publish progress without holding
// a websocket
type Consumer struct {
	group     sarama.ConsumerGroup
	applier   ProgressApplier
	broadcast RoomBroadcaster
	cfg       *config.KafkaConfig
	logger    *slog.Logger
}

// NewConsumer creates a Kafka consumer group for progress ingestion
func NewConsumer(cfg *config.KafkaConfig, applier ProgressApplier, broadcast RoomBroadcaster, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return &Consumer{
		group:     group,
		applier:   applier,
		broadcast: broadcast,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Start consumes messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	handler := &progressHandler{
		applier:   c.applier,
		broadcast: c.broadcast,
		cfg:       c.cfg,
		logger:    c.logger,
	}

	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("consume session failed, retrying", "error", err)
			time.Sleep(c.cfg.RetryDelay)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close shuts down the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

// progressHandler implements sarama.ConsumerGroupHandler with batched
// processing
type progressHandler struct {
	applier   ProgressApplier
	broadcast RoomBroadcaster
	cfg       *config.KafkaConfig
	logger    *slog.Logger
}

func (h *progressHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session started", "claims", session.Claims())
	return nil
}

func (h *progressHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim accumulates messages and flushes the batch when it fills or
// the timer fires. Offsets are marked only after the batch is applied.
func (h *progressHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	batch := make([]*sarama.ConsumerMessage, 0, h.cfg.BatchSize)
	timer := time.NewTimer(h.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		h.processBatch(session.Context(), batch)
		for _, msg := range batch {
			session.MarkMessage(msg, "")
		}
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= h.cfg.BatchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(h.cfg.BatchTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(h.cfg.BatchTimeout)
		case <-session.Context().Done():
			flush()
			return nil
		}
	}
}

// processBatch applies each report in order. A malformed or failed message
// is logged and skipped; progress reports are safe to lose because the
// next report supersedes them.
func (h *progressHandler) processBatch(ctx context.Context, batch []*sarama.ConsumerMessage) {
	for _, msg := range batch {
		var update domain.ProgressUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			h.logger.Warn("skipping malformed progress message",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}

		result, err := h.applier.UpdatePlayerProgress(ctx, update)
		if err != nil {
			h.logger.Warn("applying progress message failed",
				"room_id", update.RoomID, "user_id", update.UserID, "error", err)
			continue
		}
		if !result.Accepted {
			continue
		}

		h.broadcast.BroadcastToRoom(update.RoomID, "update_player_progress", map[string]any{
			"room_id":          update.RoomID,
			"user_id":          update.UserID,
			"score":            update.Score,
			"current_question": update.CurrentQuestion,
		})
		if result.Completed {
			h.broadcast.BroadcastToRoom(update.RoomID, "game_completed", result.Room)
		}
	}
}
