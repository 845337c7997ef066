package eventlog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

func TestJournal_RotatesAndReadsBackInOrder(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }

	entries := []world.JournalEntry{
		{Tick: 1, Seq: 1, Device: &protocol.DeviceMsg{Op: protocol.DeviceOpUpsert, Device: protocol.DeviceInfo{EntityID: 1, Kind: "GENERATOR", Rate: 5}}},
		{Tick: 2, Seq: 2, Events: []protocol.CircuitEvent{{Kind: protocol.EventWireConnected, EntityA: 1, EntityB: 2, WireID: 1, CircuitID: 1}}},
		{Tick: 3, Seq: 3, Events: []protocol.CircuitEvent{{Kind: protocol.EventWireDisconnected, EntityA: 1, EntityB: 2, WireID: 1, CircuitID: 1}}},
	}
	for i, e := range entries {
		if i == 2 {
			clock = clock.Add(2 * time.Minute)
		}
		if err := j.WriteEntry(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var seqs []uint64
	if err := ReadDir(filepath.Join(dir, "events"), func(_ string, e world.JournalEntry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("seqs=%v", seqs)
	}

	files, _ := Files(filepath.Join(dir, "events"))
	if len(files) != 2 {
		t.Fatalf("expected hourly rotation into 2 files, got %v", files)
	}
	if filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file %s", files[0])
	}
}

func TestReadDir_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(dir)
	for i := uint64(1); i <= 3; i++ {
		_ = j.WriteEntry(world.JournalEntry{Tick: i, Seq: i})
	}
	_ = j.Close()

	stop := errors.New("stop")
	n := 0
	err := ReadDir(filepath.Join(dir, "events"), func(string, world.JournalEntry) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}
