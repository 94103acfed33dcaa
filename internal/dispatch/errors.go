package dispatch

import "errors"

var (
	// ErrUnknownTool is returned for names outside the tool table. The
	// table is closed: tools are registered at construction, never at
	// runtime.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMissingArgument is returned when a required argument is absent.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrInvalidArgument is returned when an argument has the wrong
	// type or an out-of-range value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrColumnNotFound is returned when a named column is not in the
	// snapshot.
	ErrColumnNotFound = errors.New("column not found")
)
