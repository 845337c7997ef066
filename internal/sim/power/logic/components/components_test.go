package components

import (
	"testing"

	"wiregrid.ai/internal/sim/power/model"
)

func TestSplit_PathCutInTheMiddle(t *testing.T) {
	// A(1)-B(2) and C(3)-D(4) after the B-C wire is gone.
	wires := []*model.Wire{
		{ID: 1, A: 1, B: 2},
		{ID: 3, A: 3, B: 4},
	}
	groups := Split(wires)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", groups)
	}
	if groups[0][0] != 1 || groups[1][0] != 3 {
		t.Fatalf("unexpected group order: %v", groups)
	}
}

func TestSplit_LargestGroupFirst(t *testing.T) {
	wires := []*model.Wire{
		{ID: 1, A: 1, B: 2},
		{ID: 5, A: 10, B: 11},
		{ID: 6, A: 11, B: 12},
		{ID: 7, A: 12, B: 10},
	}
	groups := Split(wires)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", groups)
	}
	if len(groups[0]) != 3 || groups[0][0] != 5 {
		t.Fatalf("largest group should come first: %v", groups)
	}
}

func TestSplit_CycleStaysWhole(t *testing.T) {
	wires := []*model.Wire{
		{ID: 2, A: 1, B: 2},
		{ID: 3, A: 2, B: 3},
		{ID: 4, A: 3, B: 1},
	}
	if !Connected(wires) {
		t.Fatalf("triangle must be one component")
	}
	if got := Split(nil); got != nil {
		t.Fatalf("empty input should give no groups, got %v", got)
	}
}
