package triprepo

import "errors"

var (
	// ErrNotFound indicates the requested trip does not exist.
	ErrNotFound = errors.New("trip not found")

	// ErrAlreadyExists indicates a trip already exists with the provided ID.
	ErrAlreadyExists = errors.New("trip already exists")
)
