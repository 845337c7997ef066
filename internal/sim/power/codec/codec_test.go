package codec

import (
	"errors"
	"reflect"
	"testing"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/grid"
	"wiregrid.ai/internal/sim/power/mirror"
	"wiregrid.ai/internal/sim/power/model"
)

func TestEvents_WireFormPreservesRedefine(t *testing.T) {
	ev := model.Event{Kind: model.EventCircuitRedefined, Circuit: 4, From: 2, Wires: []model.WireID{6, 9}}
	got := EventFromWire(EventToWire(ev))
	if !reflect.DeepEqual(got, ev) {
		t.Fatalf("got %+v want %+v", got, ev)
	}
}

func TestStateFromWire_ResetsMirror(t *testing.T) {
	srv := grid.New(nil, nil)
	for e := model.EntityID(1); e <= 4; e++ {
		kind := model.KindConsumer
		if e == 1 {
			kind = model.KindGenerator
		}
		_ = srv.RegisterDevice(e, kind, int64(e))
	}
	_, _ = srv.Connect(1, 2, nil)
	_, _ = srv.Connect(2, 3, nil)
	srv.Aggregate()

	st := srv.State()
	msg := protocol.StateMsg{Type: protocol.TypeState}
	for _, d := range st.Devices {
		msg.Devices = append(msg.Devices, protocol.DeviceInfo{
			EntityID: uint64(d.Entity), Kind: d.Kind.String(), Rate: d.Rate, CircuitID: uint64(d.Circuit),
		})
	}
	for _, w := range st.Wires {
		msg.Wires = append(msg.Wires, WireInfo(w))
	}
	for _, c := range st.Circuits {
		msg.Circuits = append(msg.Circuits, CircuitInfo(c))
	}

	ms, err := StateFromWire(msg)
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	m := mirror.New(nil, nil)
	if err := m.Reset(ms); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reflect.DeepEqual(srv.State(), m.State()) {
		t.Fatalf("mirror state differs\nserver=%+v\nmirror=%+v", srv.State(), m.State())
	}

	msg.Devices[0].Kind = "TURBINE"
	if _, err := StateFromWire(msg); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}

func TestApplyDevice(t *testing.T) {
	m := mirror.New(nil, nil)
	up := protocol.DeviceMsg{Op: protocol.DeviceOpUpsert, Device: protocol.DeviceInfo{EntityID: 3, Kind: "GENERATOR", Rate: 7}}
	if err := ApplyDevice(m, up); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	up.Device.Rate = 9
	if err := ApplyDevice(m, up); err != nil {
		t.Fatalf("rate change: %v", err)
	}
	if ds := m.Devices(); len(ds) != 1 || ds[0].Rate != 9 {
		t.Fatalf("devices=%+v", ds)
	}
	if err := ApplyDevice(m, protocol.DeviceMsg{Op: protocol.DeviceOpRemove, Device: protocol.DeviceInfo{EntityID: 3}}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := ApplyDevice(m, protocol.DeviceMsg{Op: "PATCH"}); !errors.Is(err, mirror.ErrDesync) {
		t.Fatalf("expected ErrDesync, got %v", err)
	}
}
