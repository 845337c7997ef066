package mirror

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/sim/power/grid"
	"wiregrid.ai/internal/sim/power/model"
)

type posMap map[model.EntityID]mgl64.Vec2

func (p posMap) Position(e model.EntityID) (mgl64.Vec2, bool) {
	v, ok := p[e]
	return v, ok
}

type recordingRequester struct {
	connects    [][2]model.EntityID
	disconnects []model.WireID
}

func (r *recordingRequester) RequestConnect(a, b model.EntityID) error {
	r.connects = append(r.connects, [2]model.EntityID{a, b})
	return nil
}

func (r *recordingRequester) RequestDisconnect(w model.WireID) error {
	r.disconnects = append(r.disconnects, w)
	return nil
}

func applyAll(t *testing.T, m *Mirror, evs []model.Event) {
	t.Helper()
	for _, ev := range evs {
		if err := m.Apply(ev); err != nil {
			t.Fatalf("apply %+v: %v", ev, err)
		}
	}
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("mirror invariants: %v", err)
	}
}

func TestMirror_ReplayMatchesServer(t *testing.T) {
	const n = 12
	srv := grid.New(nil, nil)
	mir := New(nil, nil)
	for e := model.EntityID(1); e <= n; e++ {
		kind := model.KindConsumer
		if e%4 == 1 {
			kind = model.KindGenerator
		}
		rate := int64(e) * 3
		if err := srv.RegisterDevice(e, kind, rate); err != nil {
			t.Fatalf("server register: %v", err)
		}
		if err := mir.UpsertDevice(e, kind, rate); err != nil {
			t.Fatalf("mirror register: %v", err)
		}
	}

	r := rand.New(rand.NewSource(7))
	for step := 0; step < 400; step++ {
		st := srv.State()
		if len(st.Wires) > 0 && r.Intn(3) == 0 {
			w := st.Wires[r.Intn(len(st.Wires))]
			if err := srv.Disconnect(w.ID); err != nil {
				t.Fatalf("step %d disconnect: %v", step, err)
			}
		} else {
			a := model.EntityID(r.Intn(n) + 1)
			b := model.EntityID(r.Intn(n) + 1)
			_, _ = srv.Connect(a, b, nil) // rejections are expected and emit nothing
		}
		if err := srv.CheckInvariants(); err != nil {
			t.Fatalf("step %d server invariants: %v", step, err)
		}
		applyAll(t, mir, srv.TakeEvents())
		if !reflect.DeepEqual(srv.State(), mir.State()) {
			t.Fatalf("step %d: mirror diverged\nserver=%+v\nmirror=%+v", step, srv.State(), mir.State())
		}
	}

	// Destroying a device replicates through wire events plus a device removal.
	if err := srv.DetachDevice(5); err != nil {
		t.Fatalf("detach: %v", err)
	}
	applyAll(t, mir, srv.TakeEvents())
	if err := mir.RemoveDevice(5); err != nil {
		t.Fatalf("mirror remove: %v", err)
	}
	if !reflect.DeepEqual(srv.State(), mir.State()) {
		t.Fatalf("mirror diverged after detach")
	}
}

func TestMirror_MergeFoldsIntoAnnouncedCircuit(t *testing.T) {
	m := New(nil, nil)
	for e := model.EntityID(1); e <= 4; e++ {
		_ = m.UpsertDevice(e, model.KindConsumer, 1)
	}
	applyAll(t, m, []model.Event{
		{Kind: model.EventWireConnected, EntityA: 1, EntityB: 2, Wire: 1, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 3, EntityB: 4, Wire: 2, Circuit: 2},
	})
	applyAll(t, m, []model.Event{
		{Kind: model.EventWireConnected, EntityA: 2, EntityB: 3, Wire: 3, Circuit: 2},
	})
	views := m.AllCircuits()
	if len(views) != 1 || views[0].ID != 2 || len(views[0].Wires) != 3 {
		t.Fatalf("unexpected circuits after merge: %+v", views)
	}
	if c, _ := m.CircuitOf(1); c != 2 {
		t.Fatalf("device 1 should follow the merge, got %v", c)
	}
}

func TestMirror_DisconnectThenRedefine(t *testing.T) {
	m := New(nil, nil)
	for e := model.EntityID(1); e <= 4; e++ {
		_ = m.UpsertDevice(e, model.KindGenerator, int64(e))
	}
	applyAll(t, m, []model.Event{
		{Kind: model.EventWireConnected, EntityA: 1, EntityB: 2, Wire: 1, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 2, EntityB: 3, Wire: 2, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 3, EntityB: 4, Wire: 3, Circuit: 1},
		{Kind: model.EventWireDisconnected, EntityA: 2, EntityB: 3, Wire: 2, Circuit: 1},
		{Kind: model.EventCircuitRedefined, Circuit: 2, From: 1, Wires: []model.WireID{3}},
	})
	s1, _, _ := m.Stats(1)
	s2, _, _ := m.Stats(2)
	if s1 != 3 || s2 != 7 {
		t.Fatalf("supplies after split: %d %d", s1, s2)
	}
	if c, _ := m.CircuitOf(4); c != 2 {
		t.Fatalf("device 4 should be on circuit 2, got %v", c)
	}
}

func TestMirror_UnknownReferencesAreDesync(t *testing.T) {
	m := New(nil, nil)
	_ = m.UpsertDevice(1, model.KindConsumer, 1)
	cases := []model.Event{
		{Kind: model.EventWireDisconnected, Wire: 9, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 1, EntityB: 2, Wire: 1, Circuit: 1},
		{Kind: model.EventCircuitRedefined, Circuit: 2, From: 1, Wires: []model.WireID{1}},
		{Kind: "BOGUS"},
	}
	for _, ev := range cases {
		if err := m.Apply(ev); !errors.Is(err, ErrDesync) {
			t.Fatalf("%+v: expected ErrDesync, got %v", ev, err)
		}
	}
	if len(m.AllCircuits()) != 0 {
		t.Fatalf("rejected events must not leave circuits behind")
	}
}

func TestMirror_ReusedCircuitIDsAreDesync(t *testing.T) {
	m := New(nil, nil)
	for e := model.EntityID(1); e <= 6; e++ {
		_ = m.UpsertDevice(e, model.KindConsumer, 1)
	}
	applyAll(t, m, []model.Event{
		{Kind: model.EventWireConnected, EntityA: 1, EntityB: 2, Wire: 1, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 2, EntityB: 3, Wire: 2, Circuit: 1},
		{Kind: model.EventWireConnected, EntityA: 5, EntityB: 6, Wire: 3, Circuit: 2},
	})
	before := m.State()

	cases := []model.Event{
		// A split never lands in a circuit that is already live.
		{Kind: model.EventCircuitRedefined, Circuit: 2, From: 1, Wires: []model.WireID{2}},
		// A wire between two loose devices cannot join circuit 1.
		{Kind: model.EventWireConnected, EntityA: 4, EntityB: 5, Wire: 4, Circuit: 1},
	}
	for _, ev := range cases {
		if err := m.Apply(ev); !errors.Is(err, ErrDesync) {
			t.Fatalf("%+v: expected ErrDesync, got %v", ev, err)
		}
	}
	if !reflect.DeepEqual(before, m.State()) {
		t.Fatalf("rejected events changed the mirror")
	}
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestMirror_CheckInvariantsRejectsDisjointCircuit(t *testing.T) {
	m := New(nil, nil)
	for e := model.EntityID(1); e <= 4; e++ {
		_ = m.UpsertDevice(e, model.KindConsumer, 1)
	}
	st := model.State{
		Devices: m.reg.All(),
		Wires: []model.Wire{
			{ID: 1, Circuit: 1, A: 1, B: 2},
			{ID: 2, Circuit: 1, A: 3, B: 4},
		},
		Circuits: []model.CircuitView{{ID: 1, Wires: []model.WireID{1, 2}}},
	}
	for i := range st.Devices {
		st.Devices[i].Circuit = 1
	}
	err := m.Reset(st)
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("expected connectivity failure, got %v", err)
	}
}

func TestMirror_ResetFromServerState(t *testing.T) {
	srv := grid.New(nil, nil)
	for e := model.EntityID(1); e <= 5; e++ {
		_ = srv.RegisterDevice(e, model.KindConsumer, 2)
	}
	_, _ = srv.Connect(1, 2, nil)
	_, _ = srv.Connect(2, 3, nil)
	_, _ = srv.Connect(4, 5, nil)

	m := New(nil, nil)
	if err := m.Reset(srv.State()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reflect.DeepEqual(srv.State(), m.State()) {
		t.Fatalf("reset state differs")
	}
}

func TestMirror_FindWireNear(t *testing.T) {
	pos := posMap{
		1: {0, 0},
		2: {10, 0},
		3: {10, 10},
	}
	m := New(pos, nil)
	for e := model.EntityID(1); e <= 3; e++ {
		_ = m.UpsertDevice(e, model.KindConsumer, 1)
	}
	applyAll(t, m, []model.Event{
		{Kind: model.EventWireConnected, EntityA: 1, EntityB: 2, Wire: 4, Circuit: 3},
		{Kind: model.EventWireConnected, EntityA: 2, EntityB: 3, Wire: 5, Circuit: 3},
	})

	if c, w, ok := m.FindWireNear(mgl64.Vec2{5, 0.3}, 0.5); !ok || w != 4 || c != 3 {
		t.Fatalf("expected wire 4, got c=%v w=%v ok=%v", c, w, ok)
	}
	if _, w, ok := m.FindWireNear(mgl64.Vec2{9.8, 6}, 0.5); !ok || w != 5 {
		t.Fatalf("expected wire 5, got w=%v ok=%v", w, ok)
	}
	// Corner touches both; lower id wins.
	if _, w, _ := m.FindWireNear(mgl64.Vec2{10, 0}, 0.5); w != 4 {
		t.Fatalf("expected first match by id, got %v", w)
	}
	if _, _, ok := m.FindWireNear(mgl64.Vec2{3, 6}, 0.5); ok {
		t.Fatalf("expected miss")
	}
}

func TestMirror_RequestsDoNotMutate(t *testing.T) {
	req := &recordingRequester{}
	m := New(nil, req)
	_ = m.UpsertDevice(1, model.KindConsumer, 1)
	_ = m.UpsertDevice(2, model.KindConsumer, 1)
	if err := m.RequestConnect(1, 2); err != nil {
		t.Fatalf("request connect: %v", err)
	}
	if err := m.RequestDisconnect(7); err != nil {
		t.Fatalf("request disconnect: %v", err)
	}
	if len(req.connects) != 1 || len(req.disconnects) != 1 {
		t.Fatalf("requests not forwarded: %+v", req)
	}
	if len(m.AllCircuits()) != 0 {
		t.Fatalf("requests must not create circuits locally")
	}
	if err := New(nil, nil).RequestConnect(1, 2); !errors.Is(err, ErrNoRequester) {
		t.Fatalf("expected ErrNoRequester, got %v", err)
	}
}
