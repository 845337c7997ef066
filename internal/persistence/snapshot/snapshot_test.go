package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestSnapshot_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", "40.snap.zst")
	want := SnapshotV1{
		Header:      Header{Version: 1, WorldID: "w1", Tick: 40},
		TickRate:    10,
		Seq:         7,
		NextEntity:  3,
		NextCircuit: 4,
		NextWire:    9,
		Entities: []EntityV1{
			{ID: 1, Kind: "GENERATOR", Rate: 10, Pos: [2]float64{0, 0}, Placed: true},
			{ID: 2, Kind: "CONSUMER", Rate: 4, Pos: [2]float64{3, 1.5}, Placed: true},
		},
		Wires: []WireV1{{ID: 9, A: 1, B: 2}},
	}
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("roundtrip mismatch\n got=%+v\nwant=%+v", got, want)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != want.Header {
		t.Fatalf("header mismatch: %+v", h)
	}
}

func TestLatest_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []string{"100", "3000", "900"} {
		if err := WriteSnapshot(filepath.Join(dir, tick+".snap.zst"), SnapshotV1{}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	p, ok := Latest(dir)
	if !ok || filepath.Base(p) != "3000.snap.zst" {
		t.Fatalf("latest=%q ok=%v", p, ok)
	}
	if _, ok := Latest(t.TempDir()); ok {
		t.Fatalf("empty dir should have no latest")
	}
}
