package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrCapacityExceeded indicates admitting the session would exceed the
	// account's active-session cap.
	ErrCapacityExceeded = errors.New("repository: session capacity exceeded")
)
