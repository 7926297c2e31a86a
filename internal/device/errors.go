package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // record a failed outcome
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist in the fleet.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a fleet is built with a duplicate ID.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device is declared without an ID.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceType is returned when a device type is not AC, Fan or Light.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrUnsupportedAction is returned when a named action is not defined
	// for the device's type.
	ErrUnsupportedAction = errors.New("device: unsupported action")

	// ErrInvalidValue is returned when a named action's value has the wrong
	// type or is out of range.
	ErrInvalidValue = errors.New("device: invalid action value")
)
