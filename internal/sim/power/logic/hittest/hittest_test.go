package hittest

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestDistToSegment(t *testing.T) {
	a := mgl64.Vec2{0, 0}
	b := mgl64.Vec2{10, 0}
	cases := []struct {
		p    mgl64.Vec2
		want float64
	}{
		{mgl64.Vec2{5, 2}, 2},
		{mgl64.Vec2{-3, 4}, 5}, // beyond a: distance to the endpoint
		{mgl64.Vec2{13, 0}, 3},
		{mgl64.Vec2{7, 0}, 0},
	}
	for _, tc := range cases {
		if got := DistToSegment(tc.p, a, b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("dist(%v)=%v want %v", tc.p, got, tc.want)
		}
	}
}

func TestSegmentCircle(t *testing.T) {
	a := mgl64.Vec2{0, 0}
	b := mgl64.Vec2{4, 4}
	if !SegmentCircle(mgl64.Vec2{2, 2.3}, a, b, 0.5) {
		t.Fatalf("point just off the diagonal should hit")
	}
	if SegmentCircle(mgl64.Vec2{2, 4}, a, b, 0.5) {
		t.Fatalf("point far from the diagonal should miss")
	}
	// Degenerate segment behaves like a point.
	if !SegmentCircle(mgl64.Vec2{1, 0}, a, a, 1) {
		t.Fatalf("degenerate segment: expected hit at exactly r")
	}
	if SegmentCircle(a, a, b, -1) {
		t.Fatalf("negative radius never hits")
	}
}
