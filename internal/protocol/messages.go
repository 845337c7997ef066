package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerName      string     `json:"player_name"`
	Pos             [2]float64 `json:"pos"`
	MaxQueue        int        `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	PlayerID        string  `json:"player_id"`
	WorldID         string  `json:"world_id"`
	TickRateHz      int     `json:"tick_rate_hz"`
	PickRadius      float64 `json:"pick_radius"`
	ConnectRange    float64 `json:"connect_range"`
}

// STATE (server -> client): full dump, sent after WELCOME and on RESYNC_REQ.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Seq             uint64        `json:"seq"` // last EVENTS seq folded into this state
	Devices         []DeviceInfo  `json:"devices"`
	Wires           []WireInfo    `json:"wires"`
	Circuits        []CircuitInfo `json:"circuits"`
}

type DeviceInfo struct {
	EntityID  uint64     `json:"entity_id"`
	Kind      string     `json:"kind"` // "GENERATOR" or "CONSUMER"
	Rate      int64      `json:"rate"`
	Pos       [2]float64 `json:"pos"`
	Placed    bool       `json:"placed"`
	CircuitID uint64     `json:"circuit_id,omitempty"`
}

type WireInfo struct {
	WireID    uint64 `json:"wire_id"`
	CircuitID uint64 `json:"circuit_id"`
	EntityA   uint64 `json:"entity_a"`
	EntityB   uint64 `json:"entity_b"`
}

type CircuitInfo struct {
	CircuitID   uint64   `json:"circuit_id"`
	WireIDs     []uint64 `json:"wire_ids"`
	Generators  []uint64 `json:"generators"`
	Consumers   []uint64 `json:"consumers"`
	TotalSupply int64    `json:"total_supply"`
	TotalDemand int64    `json:"total_demand"`
}

// DEVICE (server -> client): a device appeared, changed, or was destroyed.
type DeviceMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Seq             uint64     `json:"seq"` // shares the EVENTS sequence
	Op              string     `json:"op"`  // DeviceOpUpsert or DeviceOpRemove
	Device          DeviceInfo `json:"device"`
}

const (
	DeviceOpUpsert = "UPSERT"
	DeviceOpRemove = "REMOVE"
)

// STATS (server -> client): per-circuit aggregates.
type StatsMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Circuits        []CircuitStats `json:"circuits"`
}

type CircuitStats struct {
	CircuitID   uint64 `json:"circuit_id"`
	Wires       int    `json:"wires"`
	TotalSupply int64  `json:"total_supply"`
	TotalDemand int64  `json:"total_demand"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
	WireID          uint64 `json:"wire_id,omitempty"`
}

// CONNECT_REQ (client -> server)
type ConnectReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	EntityA         uint64 `json:"entity_a"`
	EntityB         uint64 `json:"entity_b"`
}

// DISCONNECT_REQ (client -> server)
type DisconnectReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	WireID          uint64 `json:"wire_id"`
}

// MOVE (client -> server): the player's position, used for range checks.
type MoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [2]float64 `json:"pos"`
}

// RESYNC_REQ (client -> server): the mirror hit an event it could not apply.
type ResyncReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason,omitempty"`
}
