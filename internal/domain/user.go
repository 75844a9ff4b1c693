package domain

import "time"

// StartingPoints is granted to every newly generated user
const StartingPoints = 100

// DailyBonusPoints is granted by the daily login bonus
const DailyBonusPoints = 100

// User holds a player's durable point total and global rank
type User struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	TriviaPoints int64  `json:"trivia_points"`
	CurrentRank  int64  `json:"current_rank"`

	LastDailyBonusDate   string    `json:"last_daily_bonus_date,omitempty"`
	LastDailyBonusAmount int64     `json:"last_daily_bonus_amount,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LeaderboardEntry is one row of the global leaderboard
type LeaderboardEntry struct {
	Rank         int64  `json:"rank"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	TriviaPoints int64  `json:"trivia_points"`
}

// OnlinePlayer is an online user joined against their durable profile
type OnlinePlayer struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Level        string `json:"level"`
	TriviaPoints int64  `json:"trivia_points"`
	Rank         int64  `json:"rank"`
}
