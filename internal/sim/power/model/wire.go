package model

// Wire is a direct connection between two devices. The stored endpoint order
// is kept for serialization; identity between endpoints is unordered.
type Wire struct {
	ID      WireID
	Circuit CircuitID
	A       EntityID
	B       EntityID
}

// PairKey is the unordered endpoint pair of a wire.
type PairKey struct {
	Lo EntityID
	Hi EntityID
}

func MakePairKey(a, b EntityID) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

func (w *Wire) Key() PairKey { return MakePairKey(w.A, w.B) }

func (w *Wire) Touches(e EntityID) bool { return w.A == e || w.B == e }

// Other returns the far endpoint, or 0 if e is not an endpoint.
func (w *Wire) Other(e EntityID) EntityID {
	switch e {
	case w.A:
		return w.B
	case w.B:
		return w.A
	}
	return 0
}

// Incidence counts wires per device.
type Incidence map[EntityID]map[WireID]struct{}

func (in Incidence) Add(w *Wire) {
	for _, e := range [2]EntityID{w.A, w.B} {
		set := in[e]
		if set == nil {
			set = map[WireID]struct{}{}
			in[e] = set
		}
		set[w.ID] = struct{}{}
	}
}

func (in Incidence) Remove(w *Wire) {
	for _, e := range [2]EntityID{w.A, w.B} {
		set := in[e]
		if set == nil {
			continue
		}
		delete(set, w.ID)
		if len(set) == 0 {
			delete(in, e)
		}
	}
}

func (in Incidence) Degree(e EntityID) int { return len(in[e]) }

// Wires returns the wire ids touching e in ascending order.
func (in Incidence) Wires(e EntityID) []WireID {
	set := in[e]
	out := make([]WireID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortWireIDs(out)
	return out
}
