package domain

import "time"

// GameState represents the lifecycle state of a room
type GameState string

const (
	GameStateWaiting   GameState = "waiting"
	GameStateActive    GameState = "active"
	GameStateCompleted GameState = "completed"
)

// CanTransitionTo reports whether the state machine allows moving from s to
// next. States only advance forward; repeating the current state is allowed.
func (s GameState) CanTransitionTo(next GameState) bool {
	order := map[GameState]int{
		GameStateWaiting:   0,
		GameStateActive:    1,
		GameStateCompleted: 2,
	}
	cur, ok := order[s]
	if !ok {
		return false
	}
	nxt, ok := order[next]
	if !ok {
		return false
	}
	return nxt >= cur
}

// GameType distinguishes standalone rooms from league games
type GameType string

const (
	GameTypeStandard GameType = "standard"
	GameTypeLeague   GameType = "league"
)

// Question is one entry of a room's immutable question sequence
type Question struct {
	Text     string   `json:"text"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Player is a participant embedded in a room document. Players are never
// removed once added; a disconnect only affects live-connection membership.
type Player struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	JoinedAt        time.Time `json:"joined_at"`
	Score           int64     `json:"score"`
	CurrentQuestion int       `json:"current_question"`
	IsHost          bool      `json:"is_host"`
	QuestionTimes   []int64   `json:"question_times"`
	TotalTimeSpent  int64     `json:"total_time_spent"`
}

// Room is the authoritative game-session document
type Room struct {
	RoomID               string     `json:"room_id"`
	Category             string     `json:"category"`
	CreatorID            string     `json:"creator_id"`
	CreatorDisplayName   string     `json:"creator_display_name,omitempty"`
	PlayerCount          int        `json:"player_count"`
	MaxPlayers           int        `json:"max_players"`
	Players              []Player   `json:"players"`
	InvitedPlayers       []string   `json:"invited_players,omitempty"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	GameState            GameState  `json:"game_state"`

	// League linkage, set only for league games
	GameType   GameType `json:"game_type,omitempty"`
	LeagueID   string   `json:"league_id,omitempty"`
	LeagueName string   `json:"league_name,omitempty"`

	// Chat activity aggregates; message content is never persisted
	ChatActivityCounter int64      `json:"chat_activity_counter"`
	LastChatActivity    *time.Time `json:"last_chat_activity"`
	HasMessages         bool       `json:"has_messages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FindPlayer returns the index of the player with the given id, or -1
func (r *Room) FindPlayer(userID string) int {
	for i := range r.Players {
		if r.Players[i].ID == userID {
			return i
		}
	}
	return -1
}

// QuestionCount returns the length of the room's question sequence
func (r *Room) QuestionCount() int {
	return len(r.Questions)
}

// AllPlayersFinished is the completion predicate: the room has a non-empty
// question list and every player's current question index has reached the
// question count.
func (r *Room) AllPlayersFinished() bool {
	if len(r.Questions) == 0 {
		return false
	}
	for i := range r.Players {
		if r.Players[i].CurrentQuestion < len(r.Questions) {
			return false
		}
	}
	return true
}

// ChatMessage is an ephemeral chat payload relayed to room members.
// Only the room's aggregate activity counter is persisted.
type ChatMessage struct {
	ID          string    `json:"id,omitempty"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// SystemUserID is the reserved author identifier for system messages;
// chat input carrying it is dropped without broadcast.
const SystemUserID = "system"

// ProgressUpdate is a player's per-question progress report
type ProgressUpdate struct {
	RoomID          string  `json:"room_id"`
	UserID          string  `json:"user_id"`
	Score           int64   `json:"score"`
	CurrentQuestion int     `json:"current_question"`
	QuestionTimes   []int64 `json:"question_times,omitempty"`
	TotalTimeSpent  int64   `json:"total_time_spent,omitempty"`
}
