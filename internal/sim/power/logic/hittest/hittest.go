package hittest

import "github.com/go-gl/mathgl/mgl64"

// DistToSegment returns the distance from p to the segment a-b.
func DistToSegment(p, a, b mgl64.Vec2) float64 {
	d := b.Sub(a)
	l2 := d.Dot(d)
	if l2 == 0 {
		return p.Sub(a).Len()
	}
	t := mgl64.Clamp(p.Sub(a).Dot(d)/l2, 0, 1)
	closest := a.Add(d.Mul(t))
	return p.Sub(closest).Len()
}

// SegmentCircle reports whether a circle of radius r at p touches segment a-b.
func SegmentCircle(p, a, b mgl64.Vec2, r float64) bool {
	if r < 0 {
		return false
	}
	return DistToSegment(p, a, b) <= r
}
