package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/model"
)

// Entity is the world's view of a power device. The circuit manager only
// knows kind and rate; position and placement live here.
type Entity struct {
	ID     model.EntityID `json:"entity_id"`
	Kind   model.Kind     `json:"kind"`
	Rate   int64          `json:"rate"`
	Pos    mgl64.Vec2     `json:"pos"`
	Placed bool           `json:"placed"`
}

type JoinRequest struct {
	// SessionID is assigned by the world when empty.
	SessionID string
	Name      string
	Pos       [2]float64
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	State   protocol.StateMsg
}

// RequestEnvelope carries exactly one client request.
type RequestEnvelope struct {
	SessionID  string
	Connect    *protocol.ConnectReqMsg
	Disconnect *protocol.DisconnectReqMsg
	Move       *protocol.MoveMsg
	Resync     *protocol.ResyncReqMsg
}

// JournalEntry is one sequenced message of the replication stream: an EVENTS
// batch, a DEVICE change, or a full STATE written when a world is restored.
// A STATE entry carries the Seq it was taken at; the rest advance Seq by one.
type JournalEntry struct {
	Tick   uint64                  `json:"tick"`
	Seq    uint64                  `json:"seq"`
	Events []protocol.CircuitEvent `json:"events,omitempty"`
	Device *protocol.DeviceMsg     `json:"device,omitempty"`
	State  *protocol.StateMsg      `json:"state,omitempty"`
}

// Journal receives every sequenced stream entry in order.
type Journal interface {
	WriteEntry(entry JournalEntry) error
}

// StatsSink receives per-circuit aggregates every stats period.
type StatsSink interface {
	WriteStats(tick uint64, stats []protocol.CircuitStats) error
}

type clientState struct {
	SessionID string
	Player    model.PlayerID
	Name      string
	Pos       mgl64.Vec2
	Out       chan []byte
}

type directMsg struct {
	session string
	b       []byte
}
