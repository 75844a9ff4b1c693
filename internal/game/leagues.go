package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// CreateLeagueParams carries the inputs for creating a league
type CreateLeagueParams struct {
	CreatorID   string
	CreatorName string
	LeagueName  string
	MaxMembers  int
	EndDate     time.Time
}

// CreateLeague creates an active league with the creator as its admin and
// first member. The league id doubles as the join code.
func (s *Service) CreateLeague(ctx context.Context, params CreateLeagueParams) (*domain.League, error) {
	if params.CreatorID == "" || params.LeagueName == "" {
		return nil, fmt.Errorf("%w: creator id and league name are required", domain.ErrInvalidRequest)
	}
	maxMembers := params.MaxMembers
	if maxMembers <= 0 {
		maxMembers = domain.DefaultLeagueMaxMembers
	}

	now := time.Now().UTC()
	league := &domain.League{
		LeagueID:    domain.NewLeagueID(),
		LeagueName:  params.LeagueName,
		CreatorID:   params.CreatorID,
		CreatorName: params.CreatorName,
		Members: []domain.LeagueMember{{
			ID:       params.CreatorID,
			Name:     params.CreatorName,
			JoinedAt: now,
			Rank:     1,
			IsAdmin:  true,
		}},
		MemberCount:  1,
		MaxMembers:   maxMembers,
		LeagueState:  domain.LeagueStateActive,
		CreatedAt:    now,
		EndDate:      params.EndDate,
		LastActivity: now,
	}

	if err := s.docs.Set(ctx, store.CollectionLeagues, league.LeagueID, league); err != nil {
		return nil, fmt.Errorf("creating league: %w", err)
	}

	s.logger.Info("league created",
		"league_id", league.LeagueID, "creator_id", params.CreatorID, "name", params.LeagueName)
	return league, nil
}

// GetLeague fetches a league by id
func (s *Service) GetLeague(ctx context.Context, leagueID string) (*domain.League, error) {
	var league domain.League
	if err := s.docs.Get(ctx, store.CollectionLeagues, leagueID, &league); err != nil {
		if errors.Is(err, store.ErrDocNotFound) {
			return nil, domain.ErrLeagueNotFound
		}
		return nil, fmt.Errorf("getting league %s: %w", leagueID, err)
	}
	return &league, nil
}

// JoinLeague adds a user to a league. Rejoining is an idempotent no-op.
func (s *Service) JoinLeague(ctx context.Context, leagueID, userID, displayName string) (*domain.League, error) {
	var joined domain.League
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var league domain.League
		if err := tx.Get(ctx, store.CollectionLeagues, leagueID, &league); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrLeagueNotFound
			}
			return err
		}

		if league.FindMember(userID) >= 0 {
			joined = league
			return nil
		}
		if league.LeagueState != domain.LeagueStateActive {
			return domain.ErrLeagueInactive
		}
		if league.MemberCount >= league.MaxMembers {
			return domain.ErrLeagueFull
		}

		league.Members = append(league.Members, domain.LeagueMember{
			ID:       userID,
			Name:     displayName,
			JoinedAt: time.Now().UTC(),
		})
		league.MemberCount = len(league.Members)
		league.RankMembers()
		league.LastActivity = time.Now().UTC()

		joined = league
		return tx.Set(ctx, store.CollectionLeagues, leagueID, league)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member joined league",
		"league_id", leagueID, "user_id", userID, "member_count", joined.MemberCount)
	return &joined, nil
}

// ListLeaguesForUser returns every league the user is a member of
func (s *Service) ListLeaguesForUser(ctx context.Context, userID string) ([]*domain.League, error) {
	var leagues []*domain.League
	err := s.docs.List(ctx, store.CollectionLeagues, func(id string, raw []byte) error {
		var league domain.League
		if err := json.Unmarshal(raw, &league); err != nil {
			s.logger.Warn("skipping malformed league document", "league_id", id, "error", err)
			return nil
		}
		if league.FindMember(userID) >= 0 {
			leagues = append(leagues, &league)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing leagues: %w", err)
	}
	return leagues, nil
}

// CreateLeagueGameParams carries the inputs for creating a league game
type CreateLeagueGameParams struct {
	LeagueID    string
	CreatorID   string
	CreatorName string
	Category    string
	Questions   []domain.Question
}

// CreateLeagueGame creates a room bound to a league and records it on the
// league in the same transaction. Only league members may start one.
func (s *Service) CreateLeagueGame(ctx context.Context, params CreateLeagueGameParams) (*domain.Room, error) {
	now := time.Now().UTC()
	room := &domain.Room{
		RoomID:             domain.NewLeagueRoomID(),
		Category:           params.Category,
		CreatorID:          params.CreatorID,
		CreatorDisplayName: params.CreatorName,
		MaxPlayers:         s.cfg.LeagueGameMaxPlayers,
		Players: []domain.Player{{
			ID:          params.CreatorID,
			DisplayName: params.CreatorName,
			JoinedAt:    now,
			IsHost:      true,
		}},
		PlayerCount: 1,
		Questions:   params.Questions,
		GameState:   domain.GameStateWaiting,
		GameType:    domain.GameTypeLeague,
		LeagueID:    params.LeagueID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var league domain.League
		if err := tx.Get(ctx, store.CollectionLeagues, params.LeagueID, &league); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrLeagueNotFound
			}
			return err
		}
		if league.LeagueState != domain.LeagueStateActive {
			return domain.ErrLeagueInactive
		}
		if league.FindMember(params.CreatorID) < 0 {
			return domain.ErrPlayerNotFound
		}

		room.LeagueName = league.LeagueName
		league.Rooms = append(league.Rooms, room.RoomID)
		league.LastActivity = now

		if err := tx.Set(ctx, store.CollectionLeagues, params.LeagueID, league); err != nil {
			return err
		}
		return tx.Set(ctx, store.CollectionRooms, room.RoomID, room)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("league game created",
		"room_id", room.RoomID, "league_id", params.LeagueID, "creator_id", params.CreatorID)
	return room, nil
}

// LeagueStandings returns a league's members ordered by rank
func (s *Service) LeagueStandings(ctx context.Context, leagueID string) ([]domain.LeagueMember, error) {
	league, err := s.GetLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	return league.Members, nil
}
