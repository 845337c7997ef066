package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Circuit rejections.
	ErrSelfConnection     = "E_SELF_CONNECTION"
	ErrInvalidDeviceState = "E_INVALID_DEVICE_STATE"
	ErrAlreadyConnected   = "E_ALREADY_CONNECTED"
	ErrOutOfRange         = "E_OUT_OF_RANGE"
	ErrNotFound           = "E_NOT_FOUND"

	ErrWorldBusy = "E_WORLD_BUSY"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrSelfConnection:     {},
	ErrInvalidDeviceState: {},
	ErrAlreadyConnected:   {},
	ErrOutOfRange:         {},
	ErrNotFound:           {},
	ErrWorldBusy:          {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
