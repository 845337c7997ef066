package model

import "sort"

// Circuit is one connected component of devices and wires.
//
// Generators and Consumers are caches derived from Wires; they are rebuilt with
// RebuildMembers whenever the wire list changes shape.
type Circuit struct {
	ID    CircuitID
	Wires []WireID

	Generators map[EntityID]struct{}
	Consumers  map[EntityID]struct{}

	TotalSupply int64
	TotalDemand int64
}

func NewCircuit(id CircuitID) *Circuit {
	return &Circuit{
		ID:         id,
		Generators: map[EntityID]struct{}{},
		Consumers:  map[EntityID]struct{}{},
	}
}

func (c *Circuit) AddWire(id WireID) { c.Wires = append(c.Wires, id) }

// RemoveWire deletes id from the wire list, keeping the order of the rest.
func (c *Circuit) RemoveWire(id WireID) bool {
	for i, w := range c.Wires {
		if w == id {
			c.Wires = append(c.Wires[:i], c.Wires[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Circuit) HasWire(id WireID) bool {
	for _, w := range c.Wires {
		if w == id {
			return true
		}
	}
	return false
}

// AddMember files d under generators or consumers.
func (c *Circuit) AddMember(d Device) {
	switch d.Kind {
	case KindGenerator:
		c.Generators[d.Entity] = struct{}{}
	case KindConsumer:
		c.Consumers[d.Entity] = struct{}{}
	}
}

func (c *Circuit) RemoveMember(e EntityID) {
	delete(c.Generators, e)
	delete(c.Consumers, e)
}

func (c *Circuit) HasMember(e EntityID) bool {
	if _, ok := c.Generators[e]; ok {
		return true
	}
	_, ok := c.Consumers[e]
	return ok
}

// Absorb moves every wire and member of other into c. Wire and device
// back-references are the caller's job.
func (c *Circuit) Absorb(other *Circuit) {
	c.Wires = append(c.Wires, other.Wires...)
	for e := range other.Generators {
		c.Generators[e] = struct{}{}
	}
	for e := range other.Consumers {
		c.Consumers[e] = struct{}{}
	}
	other.Wires = nil
}

// RebuildMembers recomputes the generator/consumer sets from the wire list.
func (c *Circuit) RebuildMembers(wires map[WireID]*Wire, reg *Registry) {
	clear(c.Generators)
	clear(c.Consumers)
	for _, id := range c.Wires {
		w := wires[id]
		if w == nil {
			continue
		}
		for _, e := range [2]EntityID{w.A, w.B} {
			if d, ok := reg.devices[e]; ok {
				c.AddMember(*d)
			}
		}
	}
}

// SumRates recomputes the totals from the registry's current rates.
func (c *Circuit) SumRates(reg *Registry) {
	var supply, demand int64
	for e := range c.Generators {
		supply += reg.rate(e)
	}
	for e := range c.Consumers {
		demand += reg.rate(e)
	}
	c.TotalSupply = supply
	c.TotalDemand = demand
}

// CircuitView is a read-only copy of a circuit for debug output and UIs.
type CircuitView struct {
	ID          CircuitID  `json:"circuit_id"`
	Wires       []WireID   `json:"wires"`
	Generators  []EntityID `json:"generators"`
	Consumers   []EntityID `json:"consumers"`
	TotalSupply int64      `json:"total_supply"`
	TotalDemand int64      `json:"total_demand"`
}

func (c *Circuit) View() CircuitView {
	v := CircuitView{
		ID:          c.ID,
		Wires:       append([]WireID(nil), c.Wires...),
		Generators:  sortedEntities(c.Generators),
		Consumers:   sortedEntities(c.Consumers),
		TotalSupply: c.TotalSupply,
		TotalDemand: c.TotalDemand,
	}
	sortWireIDs(v.Wires)
	return v
}

// Views returns views for all circuits ordered by id.
func Views(circuits map[CircuitID]*Circuit) []CircuitView {
	out := make([]CircuitView, 0, len(circuits))
	for _, c := range circuits {
		out = append(out, c.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedEntities(set map[EntityID]struct{}) []EntityID {
	out := make([]EntityID, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortWireIDs(ids []WireID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// SortedWireIDs returns the keys of wires in ascending order.
func SortedWireIDs(wires map[WireID]*Wire) []WireID {
	out := make([]WireID, 0, len(wires))
	for id := range wires {
		out = append(out, id)
	}
	sortWireIDs(out)
	return out
}
