package mirror

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/sim/power/logic/components"
	"wiregrid.ai/internal/sim/power/logic/hittest"
	"wiregrid.ai/internal/sim/power/model"
)

// ErrDesync means an event referenced state the mirror does not have. The
// caller should ask the server for a full resync instead of repairing locally.
var ErrDesync = errors.New("mirror: out of sync with server")

// ErrNoRequester is returned by Request* when the mirror has no uplink.
var ErrNoRequester = errors.New("mirror: no requester")

// Positions resolves the current world position of an entity.
type Positions interface {
	Position(e model.EntityID) (mgl64.Vec2, bool)
}

// Requester forwards intents to the server.
type Requester interface {
	RequestConnect(a, b model.EntityID) error
	RequestDisconnect(w model.WireID) error
}

// Mirror is a client-side replica of the server's circuit graph. It applies
// server events in order and never allocates ids of its own.
//
// Not goroutine-safe.
type Mirror struct {
	reg       *model.Registry
	positions Positions
	requester Requester

	circuits map[model.CircuitID]*model.Circuit
	wires    map[model.WireID]*model.Wire
	pairs    map[model.PairKey]model.WireID
	inc      model.Incidence
}

func New(positions Positions, requester Requester) *Mirror {
	m := &Mirror{positions: positions, requester: requester}
	m.clear()
	return m
}

func (m *Mirror) clear() {
	m.reg = model.NewRegistry()
	m.circuits = map[model.CircuitID]*model.Circuit{}
	m.wires = map[model.WireID]*model.Wire{}
	m.pairs = map[model.PairKey]model.WireID{}
	m.inc = model.Incidence{}
}

// UpsertDevice records a device announced by the server, or updates its rate.
func (m *Mirror) UpsertDevice(e model.EntityID, kind model.Kind, rate int64) error {
	if m.reg.Has(e) {
		return m.reg.SetRate(e, rate)
	}
	return m.reg.Register(e, kind, rate)
}

// RemoveDevice forgets a device. The server disconnects its wires first.
func (m *Mirror) RemoveDevice(e model.EntityID) error {
	if m.inc.Degree(e) > 0 {
		return fmt.Errorf("%w: device %s removed with wires attached", ErrDesync, e)
	}
	if err := m.reg.Unregister(e); err != nil {
		return fmt.Errorf("%w: %v", ErrDesync, err)
	}
	return nil
}

// Apply dispatches one server event.
func (m *Mirror) Apply(ev model.Event) error {
	switch ev.Kind {
	case model.EventWireConnected:
		return m.ApplyConnect(ev.EntityA, ev.EntityB, ev.Wire, ev.Circuit)
	case model.EventWireDisconnected:
		return m.ApplyDisconnect(ev.Wire)
	case model.EventCircuitRedefined:
		return m.ApplyRedefine(ev.Circuit, ev.From, ev.Wires)
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrDesync, ev.Kind)
	}
}

// ApplyConnect inserts a server-created wire. If the endpoints sit on circuits
// other than circuit, the server merged them, so they are folded in here too.
func (m *Mirror) ApplyConnect(a, b model.EntityID, wire model.WireID, circuit model.CircuitID) error {
	if wire == 0 || !circuit.Valid() || a == b {
		return fmt.Errorf("%w: malformed connect %s %s-%s", ErrDesync, wire, a, b)
	}
	if _, ok := m.wires[wire]; ok {
		return fmt.Errorf("%w: wire %s already present", ErrDesync, wire)
	}
	if _, ok := m.pairs[model.MakePairKey(a, b)]; ok {
		return fmt.Errorf("%w: %s-%s already wired", ErrDesync, a, b)
	}
	da, err := m.reg.Get(a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDesync, err)
	}
	db, err := m.reg.Get(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDesync, err)
	}
	var fold []*model.Circuit
	for _, cid := range [2]model.CircuitID{da.Circuit, db.Circuit} {
		if !cid.Valid() || cid == circuit {
			continue
		}
		c := m.circuits[cid]
		if c == nil {
			return fmt.Errorf("%w: device on unknown %s", ErrDesync, cid)
		}
		if len(fold) == 1 && fold[0] == c {
			continue
		}
		fold = append(fold, c)
	}

	target := m.circuits[circuit]
	if target != nil && da.Circuit != circuit && db.Circuit != circuit {
		return fmt.Errorf("%w: %s-%s joins %s without touching it", ErrDesync, a, b, circuit)
	}
	if target == nil {
		target = model.NewCircuit(circuit)
		m.circuits[circuit] = target
	}
	for _, c := range fold {
		for _, id := range c.Wires {
			w := m.wires[id]
			w.Circuit = circuit
			m.reg.SetCircuit(w.A, circuit)
			m.reg.SetCircuit(w.B, circuit)
		}
		target.Absorb(c)
		delete(m.circuits, c.ID)
	}

	w := &model.Wire{ID: wire, Circuit: circuit, A: a, B: b}
	m.wires[wire] = w
	m.pairs[w.Key()] = wire
	m.inc.Add(w)
	target.AddWire(wire)
	target.AddMember(da)
	target.AddMember(db)
	m.reg.SetCircuit(a, circuit)
	m.reg.SetCircuit(b, circuit)
	target.SumRates(m.reg)
	return nil
}

// ApplyDisconnect removes a wire. Splits arrive separately as redefinitions.
func (m *Mirror) ApplyDisconnect(wire model.WireID) error {
	w := m.wires[wire]
	if w == nil {
		return fmt.Errorf("%w: unknown wire %s", ErrDesync, wire)
	}
	c := m.circuits[w.Circuit]
	if c == nil || !c.HasWire(wire) {
		return fmt.Errorf("%w: wire %s not on %s", ErrDesync, wire, w.Circuit)
	}
	c.RemoveWire(wire)
	delete(m.wires, wire)
	delete(m.pairs, w.Key())
	m.inc.Remove(w)
	for _, e := range [2]model.EntityID{w.A, w.B} {
		if m.inc.Degree(e) == 0 {
			m.reg.SetCircuit(e, 0)
			c.RemoveMember(e)
		}
	}
	if len(c.Wires) == 0 {
		delete(m.circuits, c.ID)
		return nil
	}
	c.SumRates(m.reg)
	return nil
}

// ApplyRedefine moves wires split off circuit from into circuit.
func (m *Mirror) ApplyRedefine(circuit, from model.CircuitID, wires []model.WireID) error {
	src := m.circuits[from]
	if src == nil || !circuit.Valid() || circuit == from {
		return fmt.Errorf("%w: redefine %s from unknown %s", ErrDesync, circuit, from)
	}
	for _, id := range wires {
		w := m.wires[id]
		if w == nil || w.Circuit != from {
			return fmt.Errorf("%w: wire %s is not on %s", ErrDesync, id, from)
		}
	}

	// Split ids are fresh on the server, so the target cannot exist yet.
	if _, ok := m.circuits[circuit]; ok {
		return fmt.Errorf("%w: redefine into existing %s", ErrDesync, circuit)
	}
	dst := model.NewCircuit(circuit)
	m.circuits[circuit] = dst
	for _, id := range wires {
		w := m.wires[id]
		src.RemoveWire(id)
		dst.AddWire(id)
		w.Circuit = circuit
		m.reg.SetCircuit(w.A, circuit)
		m.reg.SetCircuit(w.B, circuit)
	}
	dst.RebuildMembers(m.wires, m.reg)
	dst.SumRates(m.reg)
	if len(src.Wires) == 0 {
		delete(m.circuits, from)
		return nil
	}
	src.RebuildMembers(m.wires, m.reg)
	src.SumRates(m.reg)
	return nil
}

// Reset replaces the whole mirror with a server state dump.
func (m *Mirror) Reset(st model.State) error {
	m.clear()
	for _, d := range st.Devices {
		if err := m.reg.Register(d.Entity, d.Kind, d.Rate); err != nil {
			return err
		}
	}
	for i := range st.Wires {
		w := st.Wires[i]
		m.wires[w.ID] = &w
		m.pairs[w.Key()] = w.ID
		m.inc.Add(&w)
		m.reg.SetCircuit(w.A, w.Circuit)
		m.reg.SetCircuit(w.B, w.Circuit)
	}
	for _, v := range st.Circuits {
		c := model.NewCircuit(v.ID)
		c.Wires = append(c.Wires, v.Wires...)
		c.RebuildMembers(m.wires, m.reg)
		c.TotalSupply = v.TotalSupply
		c.TotalDemand = v.TotalDemand
		m.circuits[v.ID] = c
	}
	return m.CheckInvariants()
}

// FindWireNear returns the first wire, in ascending id order, whose segment
// passes within radius of point.
func (m *Mirror) FindWireNear(point mgl64.Vec2, radius float64) (model.CircuitID, model.WireID, bool) {
	if m.positions == nil {
		return 0, 0, false
	}
	for _, id := range model.SortedWireIDs(m.wires) {
		w := m.wires[id]
		pa, okA := m.positions.Position(w.A)
		pb, okB := m.positions.Position(w.B)
		if !okA || !okB {
			continue
		}
		if hittest.SegmentCircle(point, pa, pb, radius) {
			return w.Circuit, w.ID, true
		}
	}
	return 0, 0, false
}

// RequestConnect asks the server for a wire; nothing changes until the event returns.
func (m *Mirror) RequestConnect(a, b model.EntityID) error {
	if m.requester == nil {
		return ErrNoRequester
	}
	return m.requester.RequestConnect(a, b)
}

func (m *Mirror) RequestDisconnect(w model.WireID) error {
	if m.requester == nil {
		return ErrNoRequester
	}
	return m.requester.RequestDisconnect(w)
}

func (m *Mirror) Aggregate() {
	for _, c := range m.circuits {
		c.SumRates(m.reg)
	}
}

func (m *Mirror) CircuitOf(e model.EntityID) (model.CircuitID, bool) {
	d, err := m.reg.Get(e)
	if err != nil || !d.Circuit.Valid() {
		return 0, false
	}
	return d.Circuit, true
}

func (m *Mirror) Stats(id model.CircuitID) (supply, demand int64, err error) {
	c := m.circuits[id]
	if c == nil {
		return 0, 0, fmt.Errorf("%w: circuit %s", model.ErrNotFound, id)
	}
	return c.TotalSupply, c.TotalDemand, nil
}

func (m *Mirror) AllCircuits() []model.CircuitView { return model.Views(m.circuits) }

func (m *Mirror) Wire(id model.WireID) (model.Wire, bool) {
	w := m.wires[id]
	if w == nil {
		return model.Wire{}, false
	}
	return *w, true
}

func (m *Mirror) Devices() []model.Device { return m.reg.All() }

// State exports the mirror in the same shape as the server's dump.
func (m *Mirror) State() model.State {
	st := model.State{
		Devices:  m.reg.All(),
		Wires:    make([]model.Wire, 0, len(m.wires)),
		Circuits: m.AllCircuits(),
	}
	for _, id := range model.SortedWireIDs(m.wires) {
		st.Wires = append(st.Wires, *m.wires[id])
	}
	return st
}

// CheckInvariants runs the shared bookkeeping checks and verifies every
// circuit is one connected component.
func (m *Mirror) CheckInvariants() error {
	if err := model.Check(m.circuits, m.wires, m.reg); err != nil {
		return err
	}
	ids := make([]model.CircuitID, 0, len(m.circuits))
	for id := range m.circuits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := m.circuits[id]
		wires := make([]*model.Wire, 0, len(c.Wires))
		for _, wid := range c.Wires {
			wires = append(wires, m.wires[wid])
		}
		if !components.Connected(wires) {
			return fmt.Errorf("circuit %s is not connected", id)
		}
	}
	return nil
}
