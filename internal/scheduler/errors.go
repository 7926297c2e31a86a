package scheduler

import "errors"

// Domain errors for the scheduler package.
var (
	// ErrInvalidMode is returned when a mode string is not AUTO or MANUAL.
	ErrInvalidMode = errors.New("scheduler: invalid mode")

	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("scheduler: missing dependency")
)
