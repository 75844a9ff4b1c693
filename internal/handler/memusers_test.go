package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
)

func testCtx() context.Context {
	return context.Background()
}

// memUsers is an in-memory game.UserRepo for route tests
type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
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
