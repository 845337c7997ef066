package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoLayout(t *testing.T) {
	l, err := Load("../../../configs/devices.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(l.Devices) == 0 || len(l.Wires) == 0 {
		t.Fatalf("expected devices and wires, got %+v", l)
	}
	if l.Digest == "" {
		t.Fatalf("missing digest")
	}
	unplaced := 0
	for _, d := range l.Devices {
		if !d.IsPlaced() {
			unplaced++
		}
	}
	if unplaced != 1 {
		t.Fatalf("expected one unplaced device, got %d", unplaced)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"zero id":       "devices:\n  - {id: 0, kind: GENERATOR}\n",
		"duplicate id":  "devices:\n  - {id: 1, kind: GENERATOR}\n  - {id: 1, kind: CONSUMER}\n",
		"bad kind":      "devices:\n  - {id: 1, kind: BATTERY}\n",
		"dangling wire": "devices:\n  - {id: 1, kind: GENERATOR}\nwires:\n  - [1, 2]\n",
	}
	for name, body := range cases {
		p := filepath.Join(t.TempDir(), "devices.yaml")
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
