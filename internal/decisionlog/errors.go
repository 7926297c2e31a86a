package decisionlog

import "errors"

// Domain errors for the decisionlog package.
var (
	// ErrInvalidEvent is returned when an event has no type.
	ErrInvalidEvent = errors.New("decisionlog: invalid event")

	// ErrWriterClosed is returned by writers used after Close.
	ErrWriterClosed = errors.New("decisionlog: writer closed")
)
