package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeState   = "STATE"
	TypeEvents  = "EVENTS"
	TypeDevice  = "DEVICE"
	TypeStats   = "STATS"
	TypeAck     = "ACK"

	TypeConnectReq    = "CONNECT_REQ"
	TypeDisconnectReq = "DISCONNECT_REQ"
	TypeMove          = "MOVE"
	TypeResyncReq     = "RESYNC_REQ"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
