package game

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/scoring"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
)

// memUsers is an in-memory UserRepo for tests
type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// addPointsErr, when set, fails every AddPoints call
	addPointsErr error
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) CreateUser(_ context.Context, userID, displayName string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       userID,
		DisplayName:  displayName,
		TriviaPoints: domain.StartingPoints,
		CurrentRank:  int64(len(m.users) + 1),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[userID] = u
	return u, nil
}

func (m *memUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetUsersByIDs(_ context.Context, ids []string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUsers) UpdateDisplayName(_ context.Context, userID, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.DisplayName = displayName
	return nil
}

func (m *memUsers) AddPoints(_ context.Context, userID string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addPointsErr != nil {
		return 0, m.addPointsErr
	}
	u, ok := m.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	u.TriviaPoints += delta
	return u.TriviaPoints, nil
}

func (m *memUsers) SetPoints(_ context.Context, userID string, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TriviaPoints = points
	return nil
}

func (m *memUsers) AwardDailyBonus(_ context.Context, userID, bonusKey string, amount int64) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, 0, domain.ErrUserNotFound
	}
	if u.LastDailyBonusDate == bonusKey {
		return false, u.TriviaPoints, nil
	}
	u.TriviaPoints += amount
	u.LastDailyBonusDate = bonusKey
	u.LastDailyBonusAmount = amount
	return true, u.TriviaPoints, nil
}

func (m *memUsers) RecalculateRanks(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TriviaPoints != all[j].TriviaPoints {
			return all[i].TriviaPoints > all[j].TriviaPoints
		}
		return all[i].UserID < all[j].UserID
	})
	for i, u := range all {
		u.CurrentRank = int64(i + 1)
	}
	return nil
}

func (m *memUsers) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TriviaPoints != all[j].TriviaPoints {
			return all[i].TriviaPoints > all[j].TriviaPoints
		}
		return all[i].UserID < all[j].UserID
	})
	var entries []domain.LeaderboardEntry
	for i, u := range all {
		if i >= limit {
			break
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:         u.CurrentRank,
			UserID:       u.UserID,
			DisplayName:  u.DisplayName,
			TriviaPoints: u.TriviaPoints,
		})
	}
	return entries, nil
}

func (m *memUsers) UserCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func newTestService(t *testing.T) (*Service, *memUsers, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := store.NewMemoryStore()
	users := newMemUsers()
	engine := scoring.NewEngine(users, docs, logger)
	svc := NewService(docs, users, engine, config.DefaultConfig().Game, logger)
	return svc, users, docs
}

func questions(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{Text: "q", Answer: "a", Category: "science"}
	}
	return qs
}

func TestCreateRoomSeatsHost(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{
		CreatorID:   "u1",
		CreatorName: "Ada",
		Category:    "science",
		Questions:   questions(3),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, room.RoomID)
	assert.Equal(t, domain.GameStateWaiting, room.GameState)
	assert.Equal(t, 1, room.PlayerCount)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsHost)
	assert.Equal(t, 5, room.MaxPlayers)
}

func TestCreateRoomRequiresCategoryAndQuestions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params CreateRoomParams
	}{
		{"missing creator", CreateRoomParams{Category: "science", Questions: questions(1)}},
		{"missing category", CreateRoomParams{CreatorID: "u1", Questions: questions(1)}},
		{"missing questions", CreateRoomParams{CreatorID: "u1", Category: "science"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRoom(ctx, tc.params)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)

	joined, err := svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.PlayerCount)

	// A second join from the same user changes nothing
	again, err := svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)
	assert.Equal(t, 2, again.PlayerCount)
	assert.Len(t, again.Players, 2)
}

func TestJoinRoomFull(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{
		CreatorID: "u1", CreatorName: "Ada", Category: "science", MaxPlayers: 2, Questions: questions(2),
	})
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, room.RoomID, "u3", "Cal")
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	// The seated player can still rejoin a full room
	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	assert.NoError(t, err)
}

func TestJoinRoomNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.JoinRoom(context.Background(), "RNOPE", "u1", "Ada")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinCompletedRoomIsConflict(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(1)})
	require.NoError(t, err)

	_, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 10, CurrentQuestion: 1,
	})
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	assert.ErrorIs(t, err, domain.ErrRoomCompleted)
	assert.True(t, domain.IsConflictError(err))
}

func TestPlayerCountMatchesPlayers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(1)})
	require.NoError(t, err)

	for _, id := range []string{"u2", "u3", "u4"} {
		var joined *domain.Room
		joined, err = svc.JoinRoom(ctx, room.RoomID, id, id)
		require.NoError(t, err)
		assert.Equal(t, len(joined.Players), joined.PlayerCount)
	}
}

func TestProgressIgnoresRegression(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(5)})
	require.NoError(t, err)

	res, err := svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 20, CurrentQuestion: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	// An out-of-order report from question 1 must not rewind the player
	res, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 5, CurrentQuestion: 1,
	})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, 3, res.Room.Players[0].CurrentQuestion)
	assert.Equal(t, int64(20), res.Room.Players[0].Score)
}

func TestProgressUnknownPlayer(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)

	_, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "ghost", Score: 1, CurrentQuestion: 1,
	})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestCompletionSettlesExactlyOnce(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, "u2", "Ben")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)

	res, err := svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 20, CurrentQuestion: 2,
	})
	require.NoError(t, err)
	assert.False(t, res.Completed)

	// The last player finishing flips the room and settles the scores
	res, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u2", Score: 30, CurrentQuestion: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.GameStateCompleted, res.Room.GameState)

	u1, _ := users.GetUser(ctx, "u1")
	u2, _ := users.GetUser(ctx, "u2")
	assert.Equal(t, int64(domain.StartingPoints+20), u1.TriviaPoints)
	assert.Equal(t, int64(domain.StartingPoints+30), u2.TriviaPoints)
	assert.Equal(t, int64(1), u2.CurrentRank)
	assert.Equal(t, int64(2), u1.CurrentRank)

	// A duplicate final report must not settle again
	res, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u2", Score: 30, CurrentQuestion: 2,
	})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.False(t, res.Accepted)

	u2, _ = users.GetUser(ctx, "u2")
	assert.Equal(t, int64(domain.StartingPoints+30), u2.TriviaPoints)
}

func TestCompletionSurvivesScoringFailure(t *testing.T) {
	svc, users, docs := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(1)})
	require.NoError(t, err)

	users.addPointsErr = assert.AnError
	res, err := svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 25, CurrentQuestion: 1,
	})

	// The room is durably completed; the scoring failure is logged for
	// the reconciler, not surfaced
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.GameStateCompleted, res.Room.GameState)

	var stored domain.Room
	require.NoError(t, docs.Get(ctx, store.CollectionRooms, room.RoomID, &stored))
	assert.Equal(t, domain.GameStateCompleted, stored.GameState)
}

func TestUpdateRoomStateForwardOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)

	res, err := svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateActive, nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.GameStateActive, res.Room.GameState)

	// Moving back to waiting is refused without error
	res, err = svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateWaiting, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, domain.GameStateActive, res.Room.GameState)
}

func TestUpdateRoomStateCompletionRequiresFinish(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)

	_, err = svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateActive, nil)
	require.NoError(t, err)

	res, err := svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateCompleted, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.GameStateActive, res.Room.GameState)

	_, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 15, CurrentQuestion: 2,
	})
	require.NoError(t, err)

	// The progress update already completed the room; the explicit request
	// is now a no-op rather than a second completion
	res, err = svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateCompleted, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	u1, _ := users.GetUser(ctx, "u1")
	assert.Equal(t, int64(domain.StartingPoints+15), u1.TriviaPoints)
}

func TestUpdateRoomStatePlayersOverride(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		_, err := users.CreateUser(ctx, id, id)
		require.NoError(t, err)
	}

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(2)})
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)

	// Neither player has reported progress; the host submits the final
	// scores together with the completion request
	final := []domain.Player{
		{ID: "u1", DisplayName: "Ada", Score: 20, CurrentQuestion: 2, IsHost: true},
		{ID: "u2", DisplayName: "Ben", Score: 30, CurrentQuestion: 2},
	}
	res, err := svc.UpdateRoomState(ctx, room.RoomID, domain.GameStateCompleted, final)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.GameStateCompleted, res.Room.GameState)

	// Settlement uses the submitted list
	u1, _ := users.GetUser(ctx, "u1")
	u2, _ := users.GetUser(ctx, "u2")
	assert.Equal(t, int64(domain.StartingPoints+20), u1.TriviaPoints)
	assert.Equal(t, int64(domain.StartingPoints+30), u2.TriviaPoints)
}

func TestInvitePlayersDeduplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, CreateRoomParams{CreatorID: "u1", CreatorName: "Ada", Category: "science", Questions: questions(1)})
	require.NoError(t, err)

	updated, err := svc.InvitePlayers(ctx, room.RoomID, []string{"u2", "u3", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, updated.InvitedPlayers)

	updated, err = svc.InvitePlayers(ctx, room.RoomID, []string{"u3", "u4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3", "u4"}, updated.InvitedPlayers)
}

func TestLeagueLifecycle(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		_, err := users.CreateUser(ctx, id, id)
		require.NoError(t, err)
	}

	league, err := svc.CreateLeague(ctx, CreateLeagueParams{
		CreatorID: "u1", CreatorName: "Ada", LeagueName: "Friday League",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, league.MemberCount)
	assert.True(t, league.Members[0].IsAdmin)

	joined, err := svc.JoinLeague(ctx, league.LeagueID, "u2", "Ben")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	// Rejoining is a no-op
	joined, err = svc.JoinLeague(ctx, league.LeagueID, "u2", "Ben")
	require.NoError(t, err)
	assert.Equal(t, 2, joined.MemberCount)

	mine, err := svc.ListLeaguesForUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, league.LeagueID, mine[0].LeagueID)

	none, err := svc.ListLeaguesForUser(ctx, "u9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateDisplayNameValidatesAndPropagates(t *testing.T) {
	svc, users, docs := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	err = svc.UpdateDisplayName(ctx, "u1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	err = svc.UpdateDisplayName(ctx, "u1", "this name is far too long")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	league, err := svc.CreateLeague(ctx, CreateLeagueParams{
		CreatorID: "u1", CreatorName: "Ada", LeagueName: "Friday League",
	})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateDisplayName(ctx, "u1", "Lovelace"))

	updated, err := svc.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", updated.DisplayName)

	var got domain.League
	require.NoError(t, docs.Get(ctx, store.CollectionLeagues, league.LeagueID, &got))
	require.Len(t, got.Members, 1)
	assert.Equal(t, "Lovelace", got.Members[0].Name)
}

func TestLeagueGameSettlesStandings(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		_, err := users.CreateUser(ctx, id, id)
		require.NoError(t, err)
	}

	league, err := svc.CreateLeague(ctx, CreateLeagueParams{
		CreatorID: "u1", CreatorName: "Ada", LeagueName: "Friday League",
	})
	require.NoError(t, err)
	_, err = svc.JoinLeague(ctx, league.LeagueID, "u2", "Ben")
	require.NoError(t, err)

	room, err := svc.CreateLeagueGame(ctx, CreateLeagueGameParams{
		LeagueID: league.LeagueID, CreatorID: "u1", CreatorName: "Ada",
		Category: "history", Questions: questions(1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.GameTypeLeague, room.GameType)
	assert.Equal(t, league.LeagueName, room.LeagueName)

	_, err = svc.JoinRoom(ctx, room.RoomID, "u2", "Ben")
	require.NoError(t, err)

	_, err = svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u1", Score: 10, CurrentQuestion: 1,
	})
	require.NoError(t, err)
	res, err := svc.UpdatePlayerProgress(ctx, domain.ProgressUpdate{
		RoomID: room.RoomID, UserID: "u2", Score: 40, CurrentQuestion: 1,
	})
	require.NoError(t, err)
	require.True(t, res.Completed)

	standings, err := svc.LeagueStandings(ctx, league.LeagueID)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "u2", standings[0].ID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, int64(40), standings[0].Score)
	assert.Equal(t, "u1", standings[1].ID)
	assert.Equal(t, 2, standings[1].Rank)

	after, err := svc.GetLeague(ctx, league.LeagueID)
	require.NoError(t, err)
	assert.Contains(t, after.Rooms, room.RoomID)
}

func TestCreateLeagueGameRequiresMembership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	league, err := svc.CreateLeague(ctx, CreateLeagueParams{
		CreatorID: "u1", CreatorName: "Ada", LeagueName: "Friday League",
	})
	require.NoError(t, err)

	_, err = svc.CreateLeagueGame(ctx, CreateLeagueGameParams{
		LeagueID: league.LeagueID, CreatorID: "outsider", CreatorName: "X",
	})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestGenerateUserSequence(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u1, err := svc.GenerateUser(ctx, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "QQ0000001", u1.UserID)
	assert.Equal(t, int64(domain.StartingPoints), u1.TriviaPoints)

	u2, err := svc.GenerateUser(ctx, "Ben")
	require.NoError(t, err)
	assert.Equal(t, "QQ0000002", u2.UserID)
}

func TestDailyBonusOncePerWindow(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	first, err := svc.ClaimDailyBonus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Awarded)
	assert.Equal(t, int64(domain.DailyBonusPoints), first.Amount)
	assert.Equal(t, int64(domain.StartingPoints+domain.DailyBonusPoints), first.Total)

	second, err := svc.ClaimDailyBonus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Awarded)
	assert.Equal(t, first.Total, second.Total)
}

func TestLeaderboardClampsLimit(t *testing.T) {
	svc, users, docs := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := domain.FormatUserID(int64(i + 1))
		_, err := users.CreateUser(ctx, id, id)
		require.NoError(t, err)
		_, err = users.AddPoints(ctx, id, int64(i*10))
		require.NoError(t, err)
	}
	require.NoError(t, users.RecalculateRanks(ctx))

	entries, err := svc.Leaderboard(ctx, 3, "QQ0000001")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "QQ0000005", entries[0].UserID)

	var c store.Counter
	require.NoError(t, docs.Get(ctx, store.CollectionCounters, store.CounterLeaderboardClicks, &c))
	assert.Equal(t, int64(1), c.TotalClicks)
}

func TestTrackCounterRejectsUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.TrackCounter(context.Background(), "bogus", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGetUserLevelTitles(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "u1", "Ada")
	require.NoError(t, err)

	info, err := svc.GetUserLevel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Curious Cadet", info.Title)
	assert.Equal(t, int64(400), info.PointsToNextLevel)

	require.NoError(t, users.SetPoints(ctx, "u1", 12500))
	info, err = svc.GetUserLevel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Mastermind Monarch", info.Title)
	assert.True(t, info.MaxLevel)
}
