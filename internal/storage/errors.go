package storage

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates a backend could not be reached or opened.
// The auto selector treats it as a signal to fall through to the next
// backend in priority order.
var ErrUnavailable = errors.New("storage backend unavailable")

// Error annotates a backend failure with enough context to debug it
// without grepping adapter internals. Unwrap exposes the underlying
// cause so callers can keep using errors.Is against sentinels such as
// project.ErrProjectNotFound.
type Error struct {
	// Backend is the adapter name, e.g. "sqlite".
	Backend string
	// Op is the logical operation, e.g. "get" or "list".
	Op string
	// Key is the logical key or project id involved, if any.
	Key string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s: %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// opError wraps err in an *Error. It returns nil when err is nil so
// adapters can use it on the tail of every return.
func opError(backend, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Op: op, Key: key, Err: err}
}
