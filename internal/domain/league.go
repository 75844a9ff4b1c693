package domain

import (
	"sort"
	"time"
)

// LeagueState represents the lifecycle state of a league
type LeagueState string

const (
	LeagueStateActive   LeagueState = "active"
	LeagueStateInactive LeagueState = "inactive"
)

// DefaultLeagueMaxMembers caps league membership
const DefaultLeagueMaxMembers = 50

// LeagueMember is one entry of a league's member list
type LeagueMember struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	Score    int64     `json:"score"`
	Rank     int       `json:"rank"`
	IsAdmin  bool      `json:"is_admin"`
}

// League is a long-lived group whose scores across many games are
// aggregated and ranked
type League struct {
	LeagueID     string         `json:"league_id"`
	LeagueName   string         `json:"league_name"`
	CreatorID    string         `json:"creator_id"`
	CreatorName  string         `json:"creator_name"`
	Members      []LeagueMember `json:"members"`
	Rooms        []string       `json:"rooms"`
	LeagueState  LeagueState    `json:"league_state"`
	MemberCount  int            `json:"member_count"`
	MaxMembers   int            `json:"max_members"`
	CreatedAt    time.Time      `json:"created_at"`
	EndDate      time.Time      `json:"end_date"`
	LastActivity time.Time      `json:"last_activity"`
}

// FindMember returns the index of the member with the given id, or -1
func (l *League) FindMember(userID string) int {
	for i := range l.Members {
		if l.Members[i].ID == userID {
			return i
		}
	}
	return -1
}

// RankMembers sorts members by descending score and assigns dense 1-based
// ranks. Ties keep their current relative order.
func (l *League) RankMembers() {
	sort.SliceStable(l.Members, func(i, j int) bool {
		return l.Members[i].Score > l.Members[j].Score
	})
	for i := range l.Members {
		l.Members[i].Rank = i + 1
	}
}
