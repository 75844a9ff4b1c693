package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/scoring"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// Reconciler periodically recomputes the global ranking as a backstop
// against missed settlements, and backfills chat activity fields on room
// documents written before those fields existed
type Reconciler struct {
	engine *scoring.Engine
	docs   store.Store
	cfg    config.ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler creates the background reconciler
func NewReconciler(engine *scoring.Engine, docs store.Store, cfg config.ReconcilerConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		engine: engine,
		docs:   docs,
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the reconciliation loop until the context is cancelled
func (r *Reconciler) Start(ctx context.Context) {
	if r.cfg.BackfillOnStart {
		if err := r.BackfillChatFields(ctx); err != nil {
			r.logger.Error("chat field backfill failed", "error", err)
		}
	}

	if err := r.reconcile(ctx); err != nil {
		r.logger.Error("initial rank reconciliation failed", "error", err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.reconcile(ctx); err != nil {
				r.logger.Error("rank reconciliation failed", "error", err)
			}
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	start := time.Now()
	if err := r.engine.RecalculateAllRanks(ctx); err != nil {
		return err
	}
	r.logger.Info("ranks reconciled", "duration", time.Since(start))
	return nil
}

// BackfillChatFields rewrites room documents that predate the chat
// activity aggregates so every room carries the full field set
func (r *Reconciler) BackfillChatFields(ctx context.Context) error {
	var writes []store.Write

	err := r.docs.List(ctx, store.CollectionRooms, func(id string, raw []byte) error {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			r.logger.Warn("skipping malformed room document", "room_id", id, "error", err)
			return nil
		}
		if _, ok := fields["chat_activity_counter"]; ok {
			return nil
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil
		}
		doc["chat_activity_counter"] = 0
		doc["last_chat_activity"] = nil
		doc["has_messages"] = false

		writes = append(writes, store.Write{
			Collection: store.CollectionRooms,
			ID:         id,
			Doc:        doc,
		})
		return nil
	})
	if err != nil {
		return err
	}

	if len(writes) == 0 {
		return nil
	}
	if err := r.docs.SetMulti(ctx, writes); err != nil {
		return err
	}
	r.logger.Info("chat fields backfilled", "rooms", len(writes))
	return nil
}
