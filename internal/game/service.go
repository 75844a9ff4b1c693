package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/scoring"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// UserRepo is the user persistence contract the service depends on
type UserRepo interface {
	CreateUser(ctx context.Context, userID, displayName string) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) error
	AddPoints(ctx context.Context, userID string, delta int64) (int64, error)
	SetPoints(ctx context.Context, userID string, points int64) error
	AwardDailyBonus(ctx context.Context, userID, bonusKey string, amount int64) (bool, int64, error)
	RecalculateRanks(ctx context.Context) error
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	UserCount(ctx context.Context) (int64, error)
}

// Service implements the room lifecycle, league and user operations on top
// of the document store and the user repository
type Service struct {
	docs    store.Store
	users   UserRepo
	scoring *scoring.Engine
	cfg     config.GameConfig
	logger  *slog.Logger
}

// NewService creates the game service
func NewService(docs store.Store, users UserRepo, engine *scoring.Engine, cfg config.GameConfig, logger *slog.Logger) *Service {
	return &Service{
		docs:    docs,
		users:   users,
		scoring: engine,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateRoomParams carries the inputs for creating a room
type CreateRoomParams struct {
	CreatorID      string
	CreatorName    string
	Category       string
	Questions      []domain.Question
	MaxPlayers     int
	InvitedPlayers []string
}

// CreateRoom creates a room in the waiting state with the creator seated as
// host. A room without questions could never satisfy the completion
// predicate, so questions are required up front.
func (s *Service) CreateRoom(ctx context.Context, params CreateRoomParams) (*domain.Room, error) {
	if params.CreatorID == "" || params.Category == "" || len(params.Questions) == 0 {
		return nil, fmt.Errorf("%w: category, creator id and questions are required", domain.ErrInvalidRequest)
	}
	maxPlayers := params.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = s.cfg.DefaultMaxPlayers
	}

	now := time.Now().UTC()
	room := &domain.Room{
		RoomID:             domain.NewRoomID(),
		Category:           params.Category,
		CreatorID:          params.CreatorID,
		CreatorDisplayName: params.CreatorName,
		MaxPlayers:         maxPlayers,
		Players: []domain.Player{{
			ID:          params.CreatorID,
			DisplayName: params.CreatorName,
			JoinedAt:    now,
			IsHost:      true,
		}},
		PlayerCount:    1,
		InvitedPlayers: params.InvitedPlayers,
		Questions:      params.Questions,
		GameState:      domain.GameStateWaiting,
		GameType:       domain.GameTypeStandard,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.docs.Set(ctx, store.CollectionRooms, room.RoomID, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	s.logger.Info("room created",
		"room_id", room.RoomID, "creator_id", params.CreatorID,
		"category", params.Category, "max_players", maxPlayers)
	return room, nil
}

// GetRoom fetches a room by id
func (s *Service) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := s.docs.Get(ctx, store.CollectionRooms, roomID, &room); err != nil {
		if errors.Is(err, store.ErrDocNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("getting room %s: %w", roomID, err)
	}
	return &room, nil
}

// JoinRoom seats a user in a room. Joining a room the user already occupies
// is an idempotent no-op that returns the current room.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID, displayName string) (*domain.Room, error) {
	var joined domain.Room
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var room domain.Room
		if err := tx.Get(ctx, store.CollectionRooms, roomID, &room); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		if room.FindPlayer(userID) >= 0 {
			joined = room
			return nil
		}
		if room.GameState == domain.GameStateCompleted {
			return domain.ErrRoomCompleted
		}
		if room.PlayerCount >= room.MaxPlayers {
			return domain.ErrRoomFull
		}

		room.Players = append(room.Players, domain.Player{
			ID:          userID,
			DisplayName: displayName,
			JoinedAt:    time.Now().UTC(),
		})
		room.PlayerCount = len(room.Players)
		room.UpdatedAt = time.Now().UTC()

		joined = room
		return tx.Set(ctx, store.CollectionRooms, roomID, room)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("player joined room",
		"room_id", roomID, "user_id", userID, "player_count", joined.PlayerCount)
	return &joined, nil
}

// InvitePlayers records an invitation list on the room. Delivery of the
// invitation events is the caller's concern.
func (s *Service) InvitePlayers(ctx context.Context, roomID string, userIDs []string) (*domain.Room, error) {
	var updated domain.Room
	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var room domain.Room
		if err := tx.Get(ctx, store.CollectionRooms, roomID, &room); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		existing := make(map[string]bool, len(room.InvitedPlayers))
		for _, id := range room.InvitedPlayers {
			existing[id] = true
		}
		for _, id := range userIDs {
			if !existing[id] {
				room.InvitedPlayers = append(room.InvitedPlayers, id)
				existing[id] = true
			}
		}
		room.UpdatedAt = time.Now().UTC()

		updated = room
		return tx.Set(ctx, store.CollectionRooms, roomID, room)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ProgressResult reports the outcome of a progress update
type ProgressResult struct {
	Room *domain.Room
	// Accepted is false when the update was stale and ignored
	Accepted bool
	// Completed is true only for the single update that finished the game
	Completed bool
}

// UpdatePlayerProgress applies a player's progress report to the room.
// Progress only moves forward: a report whose question index is behind the
// stored one is ignored. The update that brings every player past the last
// question flips the room to completed, and the caller sees Completed=true
// exactly once; settlement runs before this method returns.
func (s *Service) UpdatePlayerProgress(ctx context.Context, update domain.ProgressUpdate) (*ProgressResult, error) {
	result := &ProgressResult{}

	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		// Reset per attempt so a retried transaction cannot double-report
		result.Accepted = false
		result.Completed = false

		var room domain.Room
		if err := tx.Get(ctx, store.CollectionRooms, update.RoomID, &room); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}

		if room.GameState == domain.GameStateCompleted {
			// Late or duplicate report after the game ended
			result.Room = &room
			return nil
		}

		idx := room.FindPlayer(update.UserID)
		if idx < 0 {
			return domain.ErrPlayerNotFound
		}

		player := &room.Players[idx]
		if update.CurrentQuestion < player.CurrentQuestion {
			s.logger.Debug("ignoring stale progress update",
				"room_id", update.RoomID, "user_id", update.UserID,
				"reported", update.CurrentQuestion, "stored", player.CurrentQuestion)
			result.Room = &room
			return nil
		}

		player.Score = update.Score
		player.CurrentQuestion = update.CurrentQuestion
		if update.QuestionTimes != nil {
			player.QuestionTimes = update.QuestionTimes
		}
		if update.TotalTimeSpent > 0 {
			player.TotalTimeSpent = update.TotalTimeSpent
		}
		room.UpdatedAt = time.Now().UTC()
		result.Accepted = true

		if room.AllPlayersFinished() {
			room.GameState = domain.GameStateCompleted
			result.Completed = true
		}

		result.Room = &room
		return tx.Set(ctx, store.CollectionRooms, update.RoomID, room)
	})
	if err != nil {
		return nil, err
	}

	if result.Completed {
		s.logger.Info("game completed", "room_id", update.RoomID)
		// The room is durably completed; a scoring failure is left to
		// the reconciler instead of failing the update.
		if err := s.scoring.SettleRoom(ctx, result.Room); err != nil {
			s.logger.Error("settling room failed", "room_id", update.RoomID, "error", err)
		}
	}
	return result, nil
}

// StateResult reports the outcome of a state transition request
type StateResult struct {
	Room *domain.Room
	// Changed is false when the request was refused; Reason says why
	Changed bool
	Reason  string
}

// UpdateRoomState moves a room through its lifecycle. Transitions only run
// forward, and completion is only granted once every player has finished.
// A refused transition is not an error; Changed is false and Reason is set.
// A non-nil players list replaces the room's player records before the
// completion predicate is evaluated, so a host can submit final scores
// together with the completion request.
func (s *Service) UpdateRoomState(ctx context.Context, roomID string, next domain.GameState, players []domain.Player) (*StateResult, error) {
	result := &StateResult{}

	err := s.docs.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		result.Changed = false
		result.Reason = ""

		var room domain.Room
		if err := tx.Get(ctx, store.CollectionRooms, roomID, &room); err != nil {
			if errors.Is(err, store.ErrDocNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		result.Room = &room

		if !room.GameState.CanTransitionTo(next) {
			result.Reason = fmt.Sprintf("cannot move from %s to %s", room.GameState, next)
			return nil
		}
		if next == room.GameState {
			result.Reason = "state unchanged"
			return nil
		}
		if players != nil {
			room.Players = players
			room.PlayerCount = len(players)
		}
		if next == domain.GameStateCompleted && !room.AllPlayersFinished() {
			result.Reason = "not all players have finished"
			return nil
		}

		room.GameState = next
		room.UpdatedAt = time.Now().UTC()
		result.Room = &room
		result.Changed = true
		return tx.Set(ctx, store.CollectionRooms, roomID, room)
	})
	if err != nil {
		return nil, err
	}

	if result.Changed && next == domain.GameStateCompleted {
		s.logger.Info("game completed", "room_id", roomID)
		if err := s.scoring.SettleRoom(ctx, result.Room); err != nil {
			s.logger.Error("settling room failed", "room_id", roomID, "error", err)
		}
	}
	return result, nil
}

// RoomChatActivity summarizes a room's persisted chat aggregates. Message
// bodies are never stored, so this is all a reader can recover.
type RoomChatActivity struct {
	RoomID string `json:"room_id"`
	// Messages are ephemeral; the list is always empty and clients rely
	// on the aggregates below.
	Messages            []domain.ChatMessage `json:"messages"`
	ChatActivityCounter int64                `json:"chat_activity_counter"`
	LastChatActivity    *time.Time           `json:"last_chat_activity"`
	HasMessages         bool                 `json:"has_messages"`
}

// GetRoomChatActivity returns a room's chat activity aggregates
func (s *Service) GetRoomChatActivity(ctx context.Context, roomID string) (*RoomChatActivity, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomChatActivity{
		RoomID:              room.RoomID,
		Messages:            []domain.ChatMessage{},
		ChatActivityCounter: room.ChatActivityCounter,
		LastChatActivity:    room.LastChatActivity,
		HasMessages:         room.HasMessages,
	}, nil
}
