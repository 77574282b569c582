package chat

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidMessageIndex = errors.New("message index out of range")
	ErrInvalidRating       = errors.New("invalid rating")
	ErrInvalidRole         = errors.New("invalid role")
	ErrEmptySessionID      = errors.New("session id is required")
)
