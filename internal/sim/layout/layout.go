package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wiregrid.ai/internal/sim/power/model"
)

// Layout seeds a fresh world with devices and the wires between them.
type Layout struct {
	Devices []DeviceDef `yaml:"devices"`
	Wires   [][2]uint64 `yaml:"wires"`

	Digest string `yaml:"-"`
}

type DeviceDef struct {
	ID     uint64     `yaml:"id"`
	Kind   string     `yaml:"kind"`
	Rate   int64      `yaml:"rate"`
	Pos    [2]float64 `yaml:"pos"`
	Placed *bool      `yaml:"placed"` // default true
}

func (d DeviceDef) IsPlaced() bool { return d.Placed == nil || *d.Placed }

func Load(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("%s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("%s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	l.Digest = hex.EncodeToString(sum[:])
	return l, nil
}

func (l Layout) Validate() error {
	seen := map[uint64]bool{}
	for i, d := range l.Devices {
		if d.ID == 0 {
			return fmt.Errorf("devices[%d]: id must be > 0", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = true
		if _, err := model.ParseKind(d.Kind); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}
	for i, w := range l.Wires {
		if !seen[w[0]] || !seen[w[1]] {
			return fmt.Errorf("wires[%d]: unknown endpoint in %v", i, w)
		}
	}
	return nil
}
