package model

import "errors"

var (
	// ErrNotFound is returned when a device, wire or circuit id is unknown.
	ErrNotFound = errors.New("power: not found")

	// ErrDeviceExists is returned when registering an entity twice.
	ErrDeviceExists = errors.New("power: device already registered")

	// ErrInvalidKind is returned for a device kind that is neither generator nor consumer.
	ErrInvalidKind = errors.New("power: invalid device kind")
)
