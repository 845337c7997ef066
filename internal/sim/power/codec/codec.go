// Package codec converts between the circuit model and its wire protocol form.
package codec

import (
	"fmt"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/mirror"
	"wiregrid.ai/internal/sim/power/model"
)

func EventToWire(ev model.Event) protocol.CircuitEvent {
	out := protocol.CircuitEvent{
		Kind:          string(ev.Kind),
		EntityA:       uint64(ev.EntityA),
		EntityB:       uint64(ev.EntityB),
		WireID:        uint64(ev.Wire),
		CircuitID:     uint64(ev.Circuit),
		FromCircuitID: uint64(ev.From),
	}
	if len(ev.Wires) > 0 {
		out.WireIDs = make([]uint64, len(ev.Wires))
		for i, w := range ev.Wires {
			out.WireIDs[i] = uint64(w)
		}
	}
	return out
}

func EventFromWire(ev protocol.CircuitEvent) model.Event {
	out := model.Event{
		Kind:    model.EventKind(ev.Kind),
		EntityA: model.EntityID(ev.EntityA),
		EntityB: model.EntityID(ev.EntityB),
		Wire:    model.WireID(ev.WireID),
		Circuit: model.CircuitID(ev.CircuitID),
		From:    model.CircuitID(ev.FromCircuitID),
	}
	if len(ev.WireIDs) > 0 {
		out.Wires = make([]model.WireID, len(ev.WireIDs))
		for i, w := range ev.WireIDs {
			out.Wires[i] = model.WireID(w)
		}
	}
	return out
}

func EventsToWire(evs []model.Event) []protocol.CircuitEvent {
	out := make([]protocol.CircuitEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, EventToWire(ev))
	}
	return out
}

func WireInfo(w model.Wire) protocol.WireInfo {
	return protocol.WireInfo{
		WireID:    uint64(w.ID),
		CircuitID: uint64(w.Circuit),
		EntityA:   uint64(w.A),
		EntityB:   uint64(w.B),
	}
}

func CircuitInfo(v model.CircuitView) protocol.CircuitInfo {
	out := protocol.CircuitInfo{
		CircuitID:   uint64(v.ID),
		WireIDs:     make([]uint64, 0, len(v.Wires)),
		Generators:  make([]uint64, 0, len(v.Generators)),
		Consumers:   make([]uint64, 0, len(v.Consumers)),
		TotalSupply: v.TotalSupply,
		TotalDemand: v.TotalDemand,
	}
	for _, w := range v.Wires {
		out.WireIDs = append(out.WireIDs, uint64(w))
	}
	for _, e := range v.Generators {
		out.Generators = append(out.Generators, uint64(e))
	}
	for _, e := range v.Consumers {
		out.Consumers = append(out.Consumers, uint64(e))
	}
	return out
}

func CircuitStats(views []model.CircuitView) []protocol.CircuitStats {
	out := make([]protocol.CircuitStats, 0, len(views))
	for _, v := range views {
		out = append(out, protocol.CircuitStats{
			CircuitID:   uint64(v.ID),
			Wires:       len(v.Wires),
			TotalSupply: v.TotalSupply,
			TotalDemand: v.TotalDemand,
		})
	}
	return out
}

// StateFromWire rebuilds a model state from a STATE dump. Device positions
// are not part of the model and are left to the caller.
func StateFromWire(msg protocol.StateMsg) (model.State, error) {
	st := model.State{
		Devices:  make([]model.Device, 0, len(msg.Devices)),
		Wires:    make([]model.Wire, 0, len(msg.Wires)),
		Circuits: make([]model.CircuitView, 0, len(msg.Circuits)),
	}
	for _, d := range msg.Devices {
		kind, err := model.ParseKind(d.Kind)
		if err != nil {
			return st, fmt.Errorf("device %d: %w", d.EntityID, err)
		}
		st.Devices = append(st.Devices, model.Device{
			Entity:  model.EntityID(d.EntityID),
			Kind:    kind,
			Rate:    d.Rate,
			Circuit: model.CircuitID(d.CircuitID),
		})
	}
	for _, w := range msg.Wires {
		st.Wires = append(st.Wires, model.Wire{
			ID:      model.WireID(w.WireID),
			Circuit: model.CircuitID(w.CircuitID),
			A:       model.EntityID(w.EntityA),
			B:       model.EntityID(w.EntityB),
		})
	}
	for _, c := range msg.Circuits {
		v := model.CircuitView{
			ID:          model.CircuitID(c.CircuitID),
			TotalSupply: c.TotalSupply,
			TotalDemand: c.TotalDemand,
		}
		for _, w := range c.WireIDs {
			v.Wires = append(v.Wires, model.WireID(w))
		}
		for _, e := range c.Generators {
			v.Generators = append(v.Generators, model.EntityID(e))
		}
		for _, e := range c.Consumers {
			v.Consumers = append(v.Consumers, model.EntityID(e))
		}
		st.Circuits = append(st.Circuits, v)
	}
	return st, nil
}

// ApplyEvents folds an EVENTS batch into m, stopping at the first event the
// mirror cannot apply.
func ApplyEvents(m *mirror.Mirror, evs []protocol.CircuitEvent) error {
	for _, ev := range evs {
		if err := m.Apply(EventFromWire(ev)); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDevice folds a DEVICE message into m.
func ApplyDevice(m *mirror.Mirror, msg protocol.DeviceMsg) error {
	id := model.EntityID(msg.Device.EntityID)
	switch msg.Op {
	case protocol.DeviceOpUpsert:
		kind, err := model.ParseKind(msg.Device.Kind)
		if err != nil {
			return fmt.Errorf("%w: %v", mirror.ErrDesync, err)
		}
		return m.UpsertDevice(id, kind, msg.Device.Rate)
	case protocol.DeviceOpRemove:
		return m.RemoveDevice(id)
	default:
		return fmt.Errorf("%w: unknown device op %q", mirror.ErrDesync, msg.Op)
	}
}
