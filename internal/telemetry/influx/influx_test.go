package influx

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

type capture struct{ points []*write.Point }

func (c *capture) WritePoint(p *write.Point) { c.points = append(c.points, p) }

func fieldValue(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func tagValue(p *write.Point, key string) string {
	for _, t := range p.TagList() {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

func TestSink_WriteStats(t *testing.T) {
	c := &capture{}
	s := NewSink(c, "w1", 10)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	stats := []protocol.CircuitStats{
		{CircuitID: 1, Wires: 2, TotalSupply: 10, TotalDemand: 4},
		{CircuitID: 3, Wires: 1, TotalSupply: 0, TotalDemand: 6},
	}
	_ = s.WriteStats(5, stats)
	if len(c.points) != 0 {
		t.Fatalf("off-period tick wrote %d points", len(c.points))
	}
	_ = s.WriteStats(20, stats)
	if len(c.points) != 3 {
		t.Fatalf("expected 2 circuit points and 1 total, got %d", len(c.points))
	}
	p := c.points[0]
	if p.Name() != "circuit_power" || tagValue(p, "circuit") != "1" || tagValue(p, "world") != "w1" {
		t.Fatalf("unexpected point %s %v", p.Name(), p.TagList())
	}
	if v := fieldValue(p, "balance"); v != int64(6) {
		t.Fatalf("balance=%v", v)
	}
	if !p.Time().Equal(fixed) {
		t.Fatalf("time=%v", p.Time())
	}
	total := c.points[2]
	if total.Name() != "grid_totals" || fieldValue(total, "demand") != int64(10) {
		t.Fatalf("totals point %s demand=%v", total.Name(), fieldValue(total, "demand"))
	}
}

func TestSink_WriteEntryCountsKinds(t *testing.T) {
	c := &capture{}
	s := NewSink(c, "w1", 1)
	_ = s.WriteEntry(world.JournalEntry{Seq: 1, Device: &protocol.DeviceMsg{}})
	if len(c.points) != 0 {
		t.Fatalf("device entries carry no circuit events")
	}
	_ = s.WriteEntry(world.JournalEntry{Seq: 2, Events: []protocol.CircuitEvent{
		{Kind: protocol.EventWireDisconnected},
		{Kind: protocol.EventCircuitRedefined},
		{Kind: protocol.EventCircuitRedefined},
	}})
	if len(c.points) != 1 {
		t.Fatalf("points=%d", len(c.points))
	}
	if v := fieldValue(c.points[0], protocol.EventCircuitRedefined); v != int64(2) {
		t.Fatalf("redefine count=%v", v)
	}
}
