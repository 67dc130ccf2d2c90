package project

import "errors"

// Common errors.
var (
	// ErrProjectNotFound is returned when no record exists for an id, and
	// by the manager when tenant checks deny a read. The two cases are
	// intentionally indistinguishable so existence never leaks.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidInput indicates missing or malformed arguments (blank id,
	// empty file map, blank requirements content).
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccessDenied indicates an explicit tenant validation failure.
	// Only administrative paths surface it; read paths report
	// ErrProjectNotFound instead.
	ErrAccessDenied = errors.New("access denied")
)
