package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// UserScores is the slice of the user repository the engine needs
type UserScores interface {
	AddPoints(ctx context.Context, userID string, delta int64) (int64, error)
	RecalculateRanks(ctx context.Context) error
}

// Engine applies finished-game scores to durable point totals and keeps
// global and league rankings consistent
type Engine struct {
	users  UserScores
	docs   store.Store
	logger *slog.Logger
}

// NewEngine creates a scoring engine
func NewEngine(users UserScores, docs store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		users:  users,
		docs:   docs,
		logger: logger,
	}
}

// SettleRoom credits every player's final score to their durable total and
// recomputes the global ranking. Players without a profile are skipped with
// a warning rather than failing the whole settlement. For league games the
// league standings are updated as well, best effort.
//
// Callers must invoke this exactly once per room, after the transition to
// the completed state has committed.
func (e *Engine) SettleRoom(ctx context.Context, room *domain.Room) error {
	for i := range room.Players {
		p := &room.Players[i]
		total, err := e.users.AddPoints(ctx, p.ID, p.Score)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				e.logger.Warn("skipping settlement for unknown user",
					"room_id", room.RoomID, "user_id", p.ID)
				continue
			}
			return fmt.Errorf("settling player %s: %w", p.ID, err)
		}
		e.logger.Info("player settled",
			"room_id", room.RoomID, "user_id", p.ID,
			"earned", p.Score, "total", total)
	}

	if err := e.users.RecalculateRanks(ctx); err != nil {
		return fmt.Errorf("recalculating ranks after settlement: %w", err)
	}

	if room.GameType == domain.GameTypeLeague && room.LeagueID != "" {
		if err := e.SettleLeague(ctx, room.LeagueID, room.Players); err != nil {
			// League standings are repaired by a later game; the room
			// settlement itself already succeeded
			e.logger.Error("league settlement failed",
				"room_id", room.RoomID, "league_id", room.LeagueID, "error", err)
		}
	}

	return nil
}

// SettleLeague adds the players' scores to their league membership records
// and recomputes the league standings in one transaction
func (e *Engine) SettleLeague(ctx context.Context, leagueID string, players []domain.Player) error {
	return e.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var league domain.League
		if err := tx.Get(ctx, store.CollectionLeagues, leagueID, &league); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrLeagueNotFound
			}
			return err
		}

		for i := range players {
			p := &players[i]
			idx := league.FindMember(p.ID)
			if idx < 0 {
				e.logger.Warn("player is not a league member, skipping",
					"league_id", leagueID, "user_id", p.ID)
				continue
			}
			league.Members[idx].Score += p.Score
		}

		league.RankMembers()
		league.LastActivity = time.Now().UTC()
		return tx.Set(ctx, store.CollectionLeagues, leagueID, league)
	})
}

// RecalculateAllRanks recomputes the global ranking from scratch. The
// background reconciler runs this periodically as a consistency backstop.
func (e *Engine) RecalculateAllRanks(ctx context.Context) error {
	return e.users.RecalculateRanks(ctx)
}
