package model

import "fmt"

// Check verifies the bookkeeping shared by the server manager and the client
// mirror: wire/circuit back-references, member caches, pair uniqueness and
// device membership. Connectivity of each circuit is checked by callers.
func Check(circuits map[CircuitID]*Circuit, wires map[WireID]*Wire, reg *Registry) error {
	pairs := make(map[PairKey]WireID, len(wires))
	seen := make(map[WireID]CircuitID, len(wires))
	devCircuit := map[EntityID]CircuitID{}

	for id, c := range circuits {
		if c.ID != id {
			return fmt.Errorf("circuit %s stored under %s", c.ID, id)
		}
		if len(c.Wires) == 0 {
			return fmt.Errorf("circuit %s has no wires", id)
		}
		gens := map[EntityID]struct{}{}
		cons := map[EntityID]struct{}{}
		for _, wid := range c.Wires {
			w := wires[wid]
			if w == nil {
				return fmt.Errorf("circuit %s lists unknown wire %s", id, wid)
			}
			if prev, dup := seen[wid]; dup {
				return fmt.Errorf("wire %s listed by %s and %s", wid, prev, id)
			}
			seen[wid] = id
			if w.Circuit != id {
				return fmt.Errorf("wire %s points at %s but is listed by %s", wid, w.Circuit, id)
			}
			if other, dup := pairs[w.Key()]; dup {
				return fmt.Errorf("wires %s and %s join the same devices", other, wid)
			}
			pairs[w.Key()] = wid
			for _, e := range [2]EntityID{w.A, w.B} {
				d, err := reg.Get(e)
				if err != nil {
					return fmt.Errorf("wire %s: %w", wid, err)
				}
				if prev, ok := devCircuit[e]; ok && prev != id {
					return fmt.Errorf("device %s wired into %s and %s", e, prev, id)
				}
				devCircuit[e] = id
				switch d.Kind {
				case KindGenerator:
					gens[e] = struct{}{}
				case KindConsumer:
					cons[e] = struct{}{}
				}
			}
		}
		if !sameSet(gens, c.Generators) || !sameSet(cons, c.Consumers) {
			return fmt.Errorf("circuit %s member cache out of date", id)
		}
	}
	if len(seen) != len(wires) {
		return fmt.Errorf("%d wires not owned by any circuit", len(wires)-len(seen))
	}
	for _, d := range reg.All() {
		want := devCircuit[d.Entity]
		if d.Circuit != want {
			return fmt.Errorf("device %s points at %s, wired into %s", d.Entity, d.Circuit, want)
		}
	}
	return nil
}

func sameSet(a, b map[EntityID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
