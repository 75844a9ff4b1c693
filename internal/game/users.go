package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// GenerateUser mints a fresh user id from the shared sequence and creates
// the profile with the starting point balance
func (s *Service) GenerateUser(ctx context.Context, displayName string) (*domain.User, error) {
	seq, err := store.NextSequence(ctx, s.docs, store.CounterUserID)
	if err != nil {
		return nil, fmt.Errorf("allocating user id: %w", err)
	}
	userID := domain.FormatUserID(seq)

	user, err := s.users.CreateUser(ctx, userID, displayName)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user generated", "user_id", userID, "display_name", displayName)
	return user, nil
}

// GetUser fetches a user profile
func (s *Service) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetUser(ctx, userID)
}

// UpdateDisplayName changes a user's display name and propagates it into
// the member lists of their leagues, best effort
func (s *Service) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	if len(displayName) == 0 || len(displayName) > 16 {
		return fmt.Errorf("%w: display name must be 1 to 16 characters", domain.ErrInvalidRequest)
	}
	if err := s.users.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return err
	}

	leagues, err := s.ListLeaguesForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("listing leagues for name propagation failed", "user_id", userID, "error", err)
		return nil
	}
	for _, l := range leagues {
		err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			var league domain.League
			if err := tx.Get(ctx, store.CollectionLeagues, l.LeagueID, &league); err != nil {
				return err
			}
			idx := league.FindMember(userID)
			if idx < 0 {
				return nil
			}
			league.Members[idx].Name = displayName
			return tx.Set(ctx, store.CollectionLeagues, league.LeagueID, league)
		})
		if err != nil {
			s.logger.Warn("propagating display name to league failed",
				"user_id", userID, "league_id", l.LeagueID, "error", err)
		}
	}
	return nil
}

// AddUserPoints credits points directly to a user, outside of game
// settlement, and refreshes the global ranking
func (s *Service) AddUserPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	total, err := s.users.AddPoints(ctx, userID, delta)
	if err != nil {
		return 0, err
	}
	if err := s.users.RecalculateRanks(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// TopEntries returns the leading entries of the global leaderboard without
// touching the engagement counters
func (s *Service) TopEntries(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.users.Leaderboard(ctx, limit)
}

// GetUserLevel resolves a user's point total against the level table
func (s *Service) GetUserLevel(ctx context.Context, userID string) (*domain.LevelInfo, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := domain.GetUserLevel(user.TriviaPoints)
	return &info, nil
}

// dailyBonusKey identifies one bonus window. The original bonus resets on
// the calendar date and hour.
func dailyBonusKey(now time.Time) string {
	return now.UTC().Format("2006-01-02-15")
}

// DailyBonusResult reports the outcome of a bonus claim
type DailyBonusResult struct {
	Awarded bool  `json:"awarded"`
	Amount  int64 `json:"amount"`
	Total   int64 `json:"total"`
}

// ClaimDailyBonus grants the daily bonus at most once per window. A repeat
// claim in the same window is not an error; Awarded comes back false.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID string) (*DailyBonusResult, error) {
	key := dailyBonusKey(time.Now())
	awarded, total, err := s.users.AwardDailyBonus(ctx, userID, key, domain.DailyBonusPoints)
	if err != nil {
		return nil, err
	}

	result := &DailyBonusResult{Awarded: awarded, Total: total}
	if awarded {
		result.Amount = domain.DailyBonusPoints
		if err := s.users.RecalculateRanks(ctx); err != nil {
			return nil, err
		}
		if err := store.TrackClick(ctx, s.docs, store.CounterDailyBonusAwarded, "Daily Bonus", userID); err != nil {
			s.logger.Warn("tracking daily bonus counter failed", "user_id", userID, "error", err)
		}
		s.logger.Info("daily bonus awarded", "user_id", userID, "total", total)
	}
	return result, nil
}

// DailyBonusAvailable reports whether the user can claim the bonus in the
// current window
func (s *Service) DailyBonusAvailable(ctx context.Context, userID string) (bool, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.LastDailyBonusDate != dailyBonusKey(time.Now()), nil
}

// Leaderboard returns the top users by points, clamped to the configured
// maximum page size. Requests are counted for engagement analytics.
func (s *Service) Leaderboard(ctx context.Context, limit int, requesterID string) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.cfg.LeaderboardLimit
	}
	if limit > s.cfg.LeaderboardMaxLimit {
		limit = s.cfg.LeaderboardMaxLimit
	}

	entries, err := s.users.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if err := store.TrackClick(ctx, s.docs, store.CounterLeaderboardClicks, "Leaderboard", requesterID); err != nil {
		s.logger.Warn("tracking leaderboard counter failed", "error", err)
	}
	return entries, nil
}

// OnlinePlayers joins the given user ids against their durable profiles,
// attaching level titles, ordered by global rank. Unknown ids are omitted.
func (s *Service) OnlinePlayers(ctx context.Context, userIDs []string) ([]domain.OnlinePlayer, error) {
	users, err := s.users.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	players := make([]domain.OnlinePlayer, 0, len(users))
	for _, u := range users {
		players = append(players, domain.OnlinePlayer{
			UserID:       u.UserID,
			DisplayName:  u.DisplayName,
			Level:        domain.GetUserLevel(u.TriviaPoints).Title,
			TriviaPoints: u.TriviaPoints,
			Rank:         u.CurrentRank,
		})
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].Rank < players[j].Rank
	})
	return players, nil
}

// trackableCounters maps public counter names to their labels
var trackableCounters = map[string]string{
	store.CounterLeaderboardClicks:  "Leaderboard",
	store.CounterLeagueIconClicks:   "League Icon",
	store.CounterSinglePlayerClicks: "Single Player",
	store.CounterMultiplayerClicks:  "Multiplayer",
	store.CounterShareClicks:        "Share Button",
}

// TrackCounter bumps one of the public engagement counters
func (s *Service) TrackCounter(ctx context.Context, counterID, userID string) error {
	label, ok := trackableCounters[counterID]
	if !ok {
		return fmt.Errorf("%w: unknown counter %q", domain.ErrInvalidRequest, counterID)
	}
	return store.TrackClick(ctx, s.docs, counterID, label, userID)
}

// GetCounter reads one engagement counter document
func (s *Service) GetCounter(ctx context.Context, counterID string) (*store.Counter, error) {
	if _, ok := trackableCounters[counterID]; !ok && counterID != store.CounterDailyBonusAwarded && counterID != store.CounterUserID {
		return nil, fmt.Errorf("%w: unknown counter %q", domain.ErrInvalidRequest, counterID)
	}
	var c store.Counter
	if err := s.docs.Get(ctx, store.CollectionCounters, counterID, &c); err != nil {
		if errors.Is(err, store.ErrDocNotFound) {
			return &store.Counter{}, nil
		}
		return nil, err
	}
	return &c, nil
}
