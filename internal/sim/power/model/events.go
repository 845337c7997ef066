package model

// EventKind names a structural change of the circuit graph.
type EventKind string

const (
	EventWireConnected    EventKind = "WIRE_CONNECTED"
	EventWireDisconnected EventKind = "WIRE_DISCONNECTED"
	// EventCircuitRedefined follows a WIRE_DISCONNECTED that split a circuit:
	// Wires moved from circuit From into the freshly allocated Circuit.
	EventCircuitRedefined EventKind = "CIRCUIT_REDEFINED"
)

// Event is what the authoritative manager tells mirrors, in emission order.
type Event struct {
	Kind    EventKind `json:"kind"`
	EntityA EntityID  `json:"entity_a,omitempty"`
	EntityB EntityID  `json:"entity_b,omitempty"`
	Wire    WireID    `json:"wire_id,omitempty"`
	Circuit CircuitID `json:"circuit_id"`
	From    CircuitID `json:"from_circuit_id,omitempty"`
	Wires   []WireID  `json:"wire_ids,omitempty"`
}

// State is a full copy of one side's circuit graph, used for resync and snapshots.
type State struct {
	Devices  []Device      `json:"devices"`
	Wires    []Wire        `json:"wires"`
	Circuits []CircuitView `json:"circuits"`
}
