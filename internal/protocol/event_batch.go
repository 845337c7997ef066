package protocol

// Circuit event kinds carried in EVENTS batches.
const (
	EventWireConnected    = "WIRE_CONNECTED"
	EventWireDisconnected = "WIRE_DISCONNECTED"
	EventCircuitRedefined = "CIRCUIT_REDEFINED"
)

// CircuitEvent is one structural change. WIRE_* events carry the two
// endpoints, the wire and its circuit; CIRCUIT_REDEFINED follows a disconnect
// that split a circuit and lists the wires moved from FromCircuitID into the
// new CircuitID.
type CircuitEvent struct {
	Kind          string   `json:"kind"`
	EntityA       uint64   `json:"entity_a,omitempty"`
	EntityB       uint64   `json:"entity_b,omitempty"`
	WireID        uint64   `json:"wire_id,omitempty"`
	CircuitID     uint64   `json:"circuit_id"`
	FromCircuitID uint64   `json:"from_circuit_id,omitempty"`
	WireIDs       []uint64 `json:"wire_ids,omitempty"`
}

// EVENTS (server -> client): every circuit event of one tick, in order.
// Seq increases by one per batch so clients can detect gaps.
type EventsMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Seq             uint64         `json:"seq"`
	Events          []CircuitEvent `json:"events"`
}
