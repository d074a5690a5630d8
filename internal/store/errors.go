package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrConflict is returned when a conditional update finds the row in another state.
	ErrConflict = errors.New("state changed concurrently")
)
