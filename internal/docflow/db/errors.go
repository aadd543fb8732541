package db

import (
	"database/sql"
	"errors"
)

var (
	// ErrStorageUnavailable means the database could not be opened or prepared.
	// It is fatal to the application session.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStoreWrite means a single write failed. The record is unchanged.
	ErrStoreWrite = errors.New("store write failed")

	// ErrNotFound means the referenced local id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition means the requested status change is not allowed
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrFormTypeChanged means a save tried to change an existing record's form type.
	ErrFormTypeChanged = errors.New("form type cannot change")
)

// IsNotFoundError returns true if the error is a "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
