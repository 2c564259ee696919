package repository

import "errors"

var (
	ErrDBNotReady = errors.New("database not initialized")
	ErrNotFound   = errors.New("repository: record not found")
	// ErrConflict is returned when a versioned update lost a race.
	ErrConflict = errors.New("repository: version conflict")
)
