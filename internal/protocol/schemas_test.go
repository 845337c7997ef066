package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"wiregrid.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	// Go structs go through JSON first so the validator sees what clients see.
	asJSON := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	helloSchema := compile("hello.schema.json")
	eventsSchema := compile("events.schema.json")
	connectSchema := compile("connect_req.schema.json")
	disconnectSchema := compile("disconnect_req.schema.json")
	stateSchema := compile("state.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_name":"p1",
	  "pos":[3.5,-2]
	}`), &hello)
	validate(helloSchema, hello)

	validate(eventsSchema, asJSON(protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            12,
		Seq:             3,
		Events: []protocol.CircuitEvent{
			{Kind: protocol.EventWireConnected, EntityA: 1, EntityB: 2, WireID: 7, CircuitID: 2},
			{Kind: protocol.EventWireDisconnected, EntityA: 2, EntityB: 3, WireID: 5, CircuitID: 2},
			{Kind: protocol.EventCircuitRedefined, CircuitID: 4, FromCircuitID: 2, WireIDs: []uint64{6}},
		},
	}))

	validate(connectSchema, asJSON(protocol.ConnectReqMsg{
		Type:            protocol.TypeConnectReq,
		ProtocolVersion: protocol.Version,
		ReqID:           "R1",
		EntityA:         1,
		EntityB:         2,
	}))
	validate(disconnectSchema, asJSON(protocol.DisconnectReqMsg{
		Type:            protocol.TypeDisconnectReq,
		ProtocolVersion: protocol.Version,
		ReqID:           "R2",
		WireID:          9,
	}))

	validate(stateSchema, asJSON(protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            40,
		Seq:             3,
		Devices: []protocol.DeviceInfo{
			{EntityID: 1, Kind: "GENERATOR", Rate: 10, Pos: [2]float64{0, 0}, Placed: true, CircuitID: 2},
			{EntityID: 2, Kind: "CONSUMER", Rate: 4, Pos: [2]float64{3, 0}, Placed: true, CircuitID: 2},
		},
		Wires: []protocol.WireInfo{{WireID: 7, CircuitID: 2, EntityA: 1, EntityB: 2}},
		Circuits: []protocol.CircuitInfo{{
			CircuitID:   2,
			WireIDs:     []uint64{7},
			Generators:  []uint64{1},
			Consumers:   []uint64{2},
			TotalSupply: 10,
			TotalDemand: 4,
		}},
	}))
}

func TestSchemas_RejectMalformedRedefine(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "events.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENTS",
	  "protocol_version":"1.0",
	  "tick":1,
	  "seq":1,
	  "events":[{"kind":"CIRCUIT_REDEFINED","circuit_id":3}]
	}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("expected redefine without wire_ids to fail validation")
	}
}
