package forecast

import "errors"

// Domain errors for the forecast package.
var (
	// ErrUnknownFeature is returned when a linear coefficient names a field
	// that Input does not have.
	ErrUnknownFeature = errors.New("forecast: unknown feature")

	// ErrUpstreamStatus is returned when the remote forecaster answers with a
	// non-2xx status.
	ErrUpstreamStatus = errors.New("forecast: unexpected upstream status")

	// ErrInvalidResponse is returned when the remote body has no usable
	// predicted_energy value.
	ErrInvalidResponse = errors.New("forecast: invalid response")
)
