package command

import "errors"

// Domain errors for the command package.
var (
	// ErrInvalidCommand is returned when a command has no device or action.
	ErrInvalidCommand = errors.New("command: invalid command")

	// ErrTypeMismatch is returned when a command's device_type does not
	// match the target device.
	ErrTypeMismatch = errors.New("command: device type mismatch")

	// ErrQueueFull is returned when Push would exceed the queue capacity.
	ErrQueueFull = errors.New("command: queue full")

	// ErrUpstreamStatus is returned when the remote command source answers
	// with a non-2xx status.
	ErrUpstreamStatus = errors.New("command: unexpected upstream status")
)
