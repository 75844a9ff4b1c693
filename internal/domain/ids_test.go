package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFormats(t *testing.T) {
	roomID := NewRoomID()
	assert.True(t, strings.HasPrefix(roomID, "R"))
	assert.Equal(t, strings.ToUpper(roomID), roomID)

	leagueRoomID := NewLeagueRoomID()
	assert.True(t, strings.HasPrefix(leagueRoomID, "LR"))

	leagueID := NewLeagueID()
	assert.True(t, strings.HasPrefix(leagueID, "L"))
	assert.False(t, strings.HasPrefix(leagueID, "LR"))

	msgID := NewMessageID()
	assert.True(t, strings.HasPrefix(msgID, "msg_"))
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRoomID()
		assert.False(t, seen[id], "duplicate room id %s", id)
		seen[id] = true
	}
}

func TestFormatUserID(t *testing.T) {
	assert.Equal(t, "QQ0000001", FormatUserID(1))
	assert.Equal(t, "QQ0000042", FormatUserID(42))
	assert.Equal(t, "QQ1234567", FormatUserID(1234567))
}

func TestGetUserLevel(t *testing.T) {
	assert.Equal(t, "Curious Cadet", GetUserLevel(0).Title)
	assert.Equal(t, "Curious Cadet", GetUserLevel(499).Title)
	assert.Equal(t, "Fact-Finder", GetUserLevel(500).Title)
	assert.Equal(t, "Mastermind Monarch", GetUserLevel(12000).Title)
	assert.True(t, GetUserLevel(99999).MaxLevel)

	info := GetUserLevel(700)
	assert.Equal(t, 2, info.Level)
	assert.Equal(t, int64(300), info.PointsToNextLevel)
	assert.Equal(t, "Trivia Trailblazer", info.NextLevelTitle)
}
