package grid

import (
	"errors"

	"wiregrid.ai/internal/sim/power/model"
)

// Rejection reasons for Connect and Disconnect. A rejected call never mutates state.
var (
	ErrSelfConnection     = errors.New("grid: device cannot connect to itself")
	ErrInvalidDeviceState = errors.New("grid: device is not placed")
	ErrAlreadyConnected   = errors.New("grid: devices already connected")
	ErrOutOfRange         = errors.New("grid: requester out of range")

	// ErrNotFound is model.ErrNotFound so callers can match either.
	ErrNotFound = model.ErrNotFound

	// ErrInvariant means internal bookkeeping disagreed with itself; the request was dropped.
	ErrInvariant = errors.New("grid: invariant violation")
)
