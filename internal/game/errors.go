package game

import "errors"

// Recoverable-local failures. Each maps to a unicast error event on the
// originating connection and never affects the rest of the room.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNameTaken    = errors.New("name taken")
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)
