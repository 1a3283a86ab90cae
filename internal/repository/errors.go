package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write loses an optimistic version check
	// or violates a uniqueness rule.
	ErrConflict = errors.New("entity state conflict")
)
