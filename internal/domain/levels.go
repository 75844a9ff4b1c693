package domain

// UserLevel pairs a point threshold with the title shown to the user
type UserLevel struct {
	Threshold int64  `json:"threshold"`
	Title     string `json:"title"`
}

// UserLevels is the ordered level table; a user holds the highest level
// whose threshold their points have reached.
var UserLevels = []UserLevel{
	{0, "Curious Cadet"},
	{500, "Fact-Finder"},
	{1000, "Trivia Trailblazer"},
	{1500, "Riddle Rogue"},
	{2000, "Knowledge Knight"},
	{2500, "Brainwave Bandit"},
	{3000, "Wisdom Warrior"},
	{3500, "Puzzle Pirate"},
	{4000, "Insight Instigator"},
	{4500, "Quiz Conqueror"},
	{5000, "Lore Legend"},
	{5500, "Data Daredevil"},
	{6000, "Enigma Empress/Emperor"},
	{6500, "Cognition Commander"},
	{7000, "Trivia Titan"},
	{7500, "Oracle Overlord"},
	{8000, "Mystery Maverick"},
	{8500, "Puzzle Phenom"},
	{9000, "Brainstorm Baron/Baroness"},
	{9500, "Quiz Quest Champion"},
	{10000, "Knowledge Kraken"},
	{10500, "Synapse Supreme"},
	{11000, "Riddle Renegade"},
	{11500, "Lore Luminary"},
	{12000, "Mastermind Monarch"},
}

// LevelInfo describes a user's position in the level table
type LevelInfo struct {
	Level              int    `json:"level"`
	Title              string `json:"title"`
	CurrentPoints      int64  `json:"current_points"`
	NextLevelTitle     string `json:"next_level_title,omitempty"`
	NextLevelThreshold int64  `json:"next_level_threshold,omitempty"`
	PointsToNextLevel  int64  `json:"points_to_next_level"`
	MaxLevel           bool   `json:"max_level"`
}

// GetUserLevel resolves a point total to its level info
func GetUserLevel(points int64) LevelInfo {
	idx := 0
	for i := range UserLevels {
		if points >= UserLevels[i].Threshold {
			idx = i
		} else {
			break
		}
	}

	info := LevelInfo{
		Level:         idx + 1,
		Title:         UserLevels[idx].Title,
		CurrentPoints: points,
		MaxLevel:      idx == len(UserLevels)-1,
	}
	if !info.MaxLevel {
		next := UserLevels[idx+1]
		info.NextLevelTitle = next.Title
		info.NextLevelThreshold = next.Threshold
		info.PointsToNextLevel = next.Threshold - points
	}
	return info
}
