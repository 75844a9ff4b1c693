package domain

import "errors"

// Domain errors
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found in room")
	ErrUserNotFound   = errors.New("user not found")
	ErrLeagueNotFound = errors.New("league not found")
	ErrRoomFull       = errors.New("room is full")
	ErrRoomCompleted  = errors.New("room is already completed")
	ErrLeagueFull     = errors.New("league has reached its maximum capacity")
	ErrLeagueInactive = errors.New("league is no longer active")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrLeagueNotFound)
}

// IsConflictError checks if an error is a capacity or league-state conflict
// that surfaces as a non-exceptional "not successful" response
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRoomFull) ||
		errors.Is(err, ErrRoomCompleted) ||
		errors.Is(err, ErrLeagueFull) ||
		errors.Is(err, ErrLeagueInactive)
}
