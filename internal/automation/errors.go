package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrUnknownPreset) {
//	    // fall back to explicit buckets
//	}
var (
	// ErrUnknownPreset is returned for a schedule preset name that does not exist.
	ErrUnknownPreset = errors.New("automation: unknown schedule preset")

	// ErrInvalidSchedule is returned when custom buckets are malformed.
	ErrInvalidSchedule = errors.New("automation: invalid schedule")
)
