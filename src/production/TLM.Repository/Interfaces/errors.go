package interfaces

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint rejects an insert
	ErrDuplicate = errors.New("record already exists")

	// ErrStaleTrigger is returned when another writer recorded a trigger first
	ErrStaleTrigger = errors.New("alert rule was triggered concurrently")
)
