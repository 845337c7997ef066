package world

import (
	"errors"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/grid"
)

// CodeFor maps a circuit or world error onto its protocol code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, grid.ErrSelfConnection):
		return protocol.ErrSelfConnection
	case errors.Is(err, grid.ErrInvalidDeviceState):
		return protocol.ErrInvalidDeviceState
	case errors.Is(err, grid.ErrAlreadyConnected):
		return protocol.ErrAlreadyConnected
	case errors.Is(err, grid.ErrOutOfRange):
		return protocol.ErrOutOfRange
	case errors.Is(err, grid.ErrNotFound), errors.Is(err, ErrUnknownEntity):
		return protocol.ErrNotFound
	default:
		return protocol.ErrInternal
	}
}
