package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/sim/layout"
	"wiregrid.ai/internal/sim/power/model"
)

// ApplyLayout seeds the world with a layout's devices, then its wires.
func (w *World) ApplyLayout(l layout.Layout) error {
	for _, d := range l.Devices {
		kind, err := model.ParseKind(d.Kind)
		if err != nil {
			return fmt.Errorf("device %d: %w", d.ID, err)
		}
		if err := w.AddEntity(Entity{
			ID:     model.EntityID(d.ID),
			Kind:   kind,
			Rate:   d.Rate,
			Pos:    mgl64.Vec2{d.Pos[0], d.Pos[1]},
			Placed: d.IsPlaced(),
		}); err != nil {
			return fmt.Errorf("device %d: %w", d.ID, err)
		}
	}
	for _, p := range l.Wires {
		if _, err := w.ConnectDevices(model.EntityID(p[0]), model.EntityID(p[1])); err != nil {
			return fmt.Errorf("wire %d-%d: %w", p[0], p[1], err)
		}
	}
	return nil
}
