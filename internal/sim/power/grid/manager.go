package grid

import (
	"fmt"
	"sort"

	"wiregrid.ai/internal/sim/power/logic/components"
	"wiregrid.ai/internal/sim/power/model"
)

// Env answers the questions the manager cannot answer from circuit state alone.
type Env interface {
	// Placed is false while an entity is a dropped item rather than a placed device.
	Placed(e model.EntityID) bool
	// InRange reports whether the player can reach the entity.
	InRange(p model.PlayerID, e model.EntityID) bool
}

type Logger interface {
	Printf(format string, args ...any)
}

type allowAll struct{}

func (allowAll) Placed(model.EntityID) bool                  { return true }
func (allowAll) InRange(model.PlayerID, model.EntityID) bool { return true }

// Manager is the authoritative circuit graph of one world.
//
// It is not goroutine-safe: the world loop is its only caller.
type Manager struct {
	reg *model.Registry
	env Env
	log Logger

	circuits map[model.CircuitID]*model.Circuit
	wires    map[model.WireID]*model.Wire
	pairs    map[model.PairKey]model.WireID
	inc      model.Incidence

	nextCircuit uint64
	nextWire    uint64

	events []model.Event
}

// New returns an empty manager. A nil env accepts every device and requester.
func New(env Env, logger Logger) *Manager {
	if env == nil {
		env = allowAll{}
	}
	return &Manager{
		reg:      model.NewRegistry(),
		env:      env,
		log:      logger,
		circuits: map[model.CircuitID]*model.Circuit{},
		wires:    map[model.WireID]*model.Wire{},
		pairs:    map[model.PairKey]model.WireID{},
		inc:      model.Incidence{},
	}
}

func (m *Manager) RegisterDevice(e model.EntityID, kind model.Kind, rate int64) error {
	return m.reg.Register(e, kind, rate)
}

func (m *Manager) SetRate(e model.EntityID, rate int64) error {
	return m.reg.SetRate(e, rate)
}

func (m *Manager) Device(e model.EntityID) (model.Device, error) {
	return m.reg.Get(e)
}

// Connect wires a to b. requester is nil for simulation-driven connects.
func (m *Manager) Connect(a, b model.EntityID, requester *model.PlayerID) (model.WireID, error) {
	if a == b {
		return 0, ErrSelfConnection
	}
	da, err := m.reg.Get(a)
	if err != nil {
		return 0, err
	}
	db, err := m.reg.Get(b)
	if err != nil {
		return 0, err
	}
	if !m.env.Placed(a) || !m.env.Placed(b) {
		return 0, ErrInvalidDeviceState
	}
	key := model.MakePairKey(a, b)
	if _, ok := m.pairs[key]; ok {
		return 0, ErrAlreadyConnected
	}
	if requester != nil && (!m.env.InRange(*requester, a) || !m.env.InRange(*requester, b)) {
		return 0, ErrOutOfRange
	}

	// Resolve circuits before touching anything.
	var ca, cb *model.Circuit
	if da.Circuit.Valid() {
		if ca = m.circuits[da.Circuit]; ca == nil {
			return 0, m.invariant("device %s points at missing %s", a, da.Circuit)
		}
	}
	if db.Circuit.Valid() {
		if cb = m.circuits[db.Circuit]; cb == nil {
			return 0, m.invariant("device %s points at missing %s", b, db.Circuit)
		}
	}

	var target *model.Circuit
	switch {
	case ca == nil && cb == nil:
		target = m.newCircuit()
	case cb == nil:
		target = ca
	case ca == nil:
		target = cb
	case ca == cb:
		// Closing a loop inside one circuit: no merge needed.
		target = ca
	default:
		target = m.merge(ca, cb)
	}

	m.nextWire++
	w := &model.Wire{ID: model.WireID(m.nextWire), Circuit: target.ID, A: a, B: b}
	m.wires[w.ID] = w
	m.pairs[key] = w.ID
	m.inc.Add(w)
	target.AddWire(w.ID)
	target.AddMember(da)
	target.AddMember(db)
	m.reg.SetCircuit(a, target.ID)
	m.reg.SetCircuit(b, target.ID)
	target.SumRates(m.reg)

	m.emit(model.Event{Kind: model.EventWireConnected, EntityA: a, EntityB: b, Wire: w.ID, Circuit: target.ID})
	return w.ID, nil
}

// merge folds the circuit with fewer wires into the other and returns the survivor.
func (m *Manager) merge(x, y *model.Circuit) *model.Circuit {
	big, small := x, y
	if len(small.Wires) > len(big.Wires) || (len(small.Wires) == len(big.Wires) && small.ID < big.ID) {
		big, small = small, big
	}
	for _, id := range small.Wires {
		if w := m.wires[id]; w != nil {
			w.Circuit = big.ID
		}
	}
	for e := range small.Generators {
		m.reg.SetCircuit(e, big.ID)
	}
	for e := range small.Consumers {
		m.reg.SetCircuit(e, big.ID)
	}
	big.Absorb(small)
	delete(m.circuits, small.ID)
	return big
}

// Disconnect removes a wire and splits its circuit if that wire was a bridge.
func (m *Manager) Disconnect(id model.WireID) error {
	w := m.wires[id]
	if w == nil {
		return fmt.Errorf("%w: wire %s", ErrNotFound, id)
	}
	c := m.circuits[w.Circuit]
	if c == nil || !c.HasWire(id) {
		return m.invariant("wire %s not listed by its circuit %s", id, w.Circuit)
	}

	c.RemoveWire(id)
	delete(m.wires, id)
	delete(m.pairs, w.Key())
	m.inc.Remove(w)
	m.emit(model.Event{Kind: model.EventWireDisconnected, EntityA: w.A, EntityB: w.B, Wire: id, Circuit: c.ID})

	for _, e := range [2]model.EntityID{w.A, w.B} {
		if m.inc.Degree(e) == 0 {
			m.reg.SetCircuit(e, 0)
		}
	}
	if len(c.Wires) == 0 {
		delete(m.circuits, c.ID)
		return nil
	}

	groups := components.Split(m.circuitWires(c))
	if len(groups) > 1 {
		keep := make(map[model.WireID]struct{}, len(groups[0]))
		for _, wid := range groups[0] {
			keep[wid] = struct{}{}
		}
		kept := c.Wires[:0]
		for _, wid := range c.Wires {
			if _, ok := keep[wid]; ok {
				kept = append(kept, wid)
			}
		}
		c.Wires = kept

		for _, g := range groups[1:] {
			nc := m.newCircuit()
			nc.Wires = g
			for _, wid := range g {
				moved := m.wires[wid]
				moved.Circuit = nc.ID
				m.reg.SetCircuit(moved.A, nc.ID)
				m.reg.SetCircuit(moved.B, nc.ID)
			}
			nc.RebuildMembers(m.wires, m.reg)
			nc.SumRates(m.reg)
			m.emit(model.Event{Kind: model.EventCircuitRedefined, Circuit: nc.ID, From: c.ID, Wires: append([]model.WireID(nil), g...)})
		}
	}
	c.RebuildMembers(m.wires, m.reg)
	c.SumRates(m.reg)
	return nil
}

// DetachDevice removes every wire touching e, one fully resolved disconnect at
// a time, then unregisters the device. Called when the entity is destroyed.
func (m *Manager) DetachDevice(e model.EntityID) error {
	if !m.reg.Has(e) {
		return fmt.Errorf("%w: device %s", ErrNotFound, e)
	}
	for _, id := range m.inc.Wires(e) {
		if err := m.Disconnect(id); err != nil {
			return fmt.Errorf("detach %s: %w", e, err)
		}
	}
	return m.reg.Unregister(e)
}

// Aggregate recomputes supply and demand for every circuit. Run once per tick.
func (m *Manager) Aggregate() {
	for _, c := range m.circuits {
		c.SumRates(m.reg)
	}
}

func (m *Manager) CircuitOf(e model.EntityID) (model.CircuitID, bool) {
	d, err := m.reg.Get(e)
	if err != nil || !d.Circuit.Valid() {
		return 0, false
	}
	return d.Circuit, true
}

func (m *Manager) Stats(id model.CircuitID) (supply, demand int64, err error) {
	c := m.circuits[id]
	if c == nil {
		return 0, 0, fmt.Errorf("%w: circuit %s", ErrNotFound, id)
	}
	return c.TotalSupply, c.TotalDemand, nil
}

func (m *Manager) AllCircuits() []model.CircuitView { return model.Views(m.circuits) }

func (m *Manager) Wire(id model.WireID) (model.Wire, bool) {
	w := m.wires[id]
	if w == nil {
		return model.Wire{}, false
	}
	return *w, true
}

func (m *Manager) WireBetween(a, b model.EntityID) (model.WireID, bool) {
	id, ok := m.pairs[model.MakePairKey(a, b)]
	return id, ok
}

// WiresOf lists the wires touching e in ascending id order.
func (m *Manager) WiresOf(e model.EntityID) []model.WireID { return m.inc.Wires(e) }

func (m *Manager) Devices() []model.Device { return m.reg.All() }

func (m *Manager) Counts() (circuits, wires, devices int) {
	return len(m.circuits), len(m.wires), m.reg.Len()
}

// State exports the whole graph.
func (m *Manager) State() model.State {
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

// Counters reports the last circuit and wire ids handed out.
func (m *Manager) Counters() (circuit, wire uint64) { return m.nextCircuit, m.nextWire }

// ReserveIDs moves the id counters forward so ids issued before a restore are
// never handed out again. Counters never move backwards.
func (m *Manager) ReserveIDs(circuit, wire uint64) {
	if circuit > m.nextCircuit {
		m.nextCircuit = circuit
	}
	if wire > m.nextWire {
		m.nextWire = wire
	}
}

// TakeEvents returns the events emitted since the last call and clears the outbox.
func (m *Manager) TakeEvents() []model.Event {
	out := m.events
	m.events = nil
	return out
}

// CheckInvariants verifies wire, device and member bookkeeping plus that every
// circuit is one connected component.
func (m *Manager) CheckInvariants() error {
	if err := model.Check(m.circuits, m.wires, m.reg); err != nil {
		return err
	}
	if len(m.pairs) != len(m.wires) {
		return fmt.Errorf("pair index has %d entries for %d wires", len(m.pairs), len(m.wires))
	}
	ids := make([]model.CircuitID, 0, len(m.circuits))
	for id := range m.circuits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !components.Connected(m.circuitWires(m.circuits[id])) {
			return fmt.Errorf("circuit %s is not connected", id)
		}
	}
	return nil
}

func (m *Manager) newCircuit() *model.Circuit {
	m.nextCircuit++
	c := model.NewCircuit(model.CircuitID(m.nextCircuit))
	m.circuits[c.ID] = c
	return c
}

func (m *Manager) circuitWires(c *model.Circuit) []*model.Wire {
	out := make([]*model.Wire, 0, len(c.Wires))
	for _, id := range c.Wires {
		if w := m.wires[id]; w != nil {
			out = append(out, w)
		}
	}
	return out
}

func (m *Manager) emit(ev model.Event) { m.events = append(m.events, ev) }

func (m *Manager) invariant(format string, args ...any) error {
	err := fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
	if m.log != nil {
		m.log.Printf("circuit manager: %v", err)
	}
	return err
}
