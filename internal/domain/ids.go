package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// randomSuffix returns n characters of fresh uuid entropy
func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:n]
}

// NewRoomID generates a room identifier (R + base36 millis + random suffix)
func NewRoomID() string {
	return strings.ToUpper("R" + strconv.FormatInt(time.Now().UnixMilli(), 36) + randomSuffix(5))
}

// NewLeagueRoomID generates a room identifier for a league game
func NewLeagueRoomID() string {
	return strings.ToUpper("LR" + strconv.FormatInt(time.Now().UnixMilli(), 36) + randomSuffix(5))
}

// NewLeagueID generates a league identifier, also used as the join code
func NewLeagueID() string {
	return strings.ToUpper("L" + strconv.FormatInt(time.Now().UnixMilli(), 36) + randomSuffix(5))
}

// NewMessageID generates a chat message identifier
func NewMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), randomSuffix(9))
}

// FormatUserID renders a counter value as a public user id (QQ0000001)
func FormatUserID(n int64) string {
	return fmt.Sprintf("QQ%07d", n)
}
