package session

import "errors"

var (
	// ErrSessionNotFound is returned when an id does not match a live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
