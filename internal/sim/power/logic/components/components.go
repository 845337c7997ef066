package components

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"wiregrid.ai/internal/sim/power/model"
)

// Split partitions wires into connected components.
//
// Each group lists wire ids in ascending order. Groups are ordered largest
// first; equal sizes are ordered by their lowest wire id. Callers keep the
// original circuit id for group 0.
func Split(wires []*model.Wire) [][]model.WireID {
	if len(wires) == 0 {
		return nil
	}

	g := simple.NewUndirectedGraph()
	for _, w := range wires {
		// Self-loops are rejected at connect time; simple graphs panic on them.
		if w.A == w.B {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(int64(w.A)), simple.Node(int64(w.B))))
	}

	compOf := map[int64]int{}
	for i, comp := range topo.ConnectedComponents(g) {
		for _, n := range comp {
			compOf[n.ID()] = i
		}
	}

	byComp := map[int][]model.WireID{}
	for _, w := range wires {
		c, ok := compOf[int64(w.A)]
		if !ok {
			continue
		}
		byComp[c] = append(byComp[c], w.ID)
	}

	out := make([][]model.WireID, 0, len(byComp))
	for _, ids := range byComp {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// Connected reports whether wires form a single component.
func Connected(wires []*model.Wire) bool {
	return len(Split(wires)) <= 1
}
