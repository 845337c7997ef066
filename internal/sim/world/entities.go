package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/model"
)

var ErrUnknownEntity = errors.New("world: unknown entity")

// worldEnv answers placement and reach questions for the circuit manager.
type worldEnv struct{ w *World }

func (e worldEnv) Placed(id model.EntityID) bool {
	ent := e.w.entities[id]
	return ent != nil && ent.Placed
}

func (e worldEnv) InRange(p model.PlayerID, id model.EntityID) bool {
	cs := e.w.players[p]
	ent := e.w.entities[id]
	if cs == nil || ent == nil {
		return false
	}
	return cs.Pos.Sub(ent.Pos).Len() <= e.w.cfg.ConnectRange
}

// The methods below run on the world goroutine: call them from Submit, or
// directly when the world is not running.

// SpawnDevice places a new device and returns its id.
func (w *World) SpawnDevice(kind model.Kind, rate int64, pos mgl64.Vec2, placed bool) (model.EntityID, error) {
	w.nextEntity++
	id := model.EntityID(w.nextEntity)
	if err := w.AddEntity(Entity{ID: id, Kind: kind, Rate: rate, Pos: pos, Placed: placed}); err != nil {
		return 0, err
	}
	return id, nil
}

// AddEntity inserts an entity with a caller-chosen id.
func (w *World) AddEntity(e Entity) error {
	if e.ID == 0 {
		return fmt.Errorf("%w: zero id", model.ErrNotFound)
	}
	if _, ok := w.entities[e.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrDeviceExists, e.ID)
	}
	if err := w.grid.RegisterDevice(e.ID, e.Kind, e.Rate); err != nil {
		return err
	}
	ent := e
	w.entities[e.ID] = &ent
	if uint64(e.ID) > w.nextEntity {
		w.nextEntity = uint64(e.ID)
	}
	w.emitDevice(protocol.DeviceOpUpsert, ent)
	return nil
}

// DestroyEntity disconnects every wire of the device, then removes it.
func (w *World) DestroyEntity(id model.EntityID) error {
	ent := w.entities[id]
	if ent == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if err := w.grid.DetachDevice(id); err != nil {
		return err
	}
	delete(w.entities, id)
	w.emitDevice(protocol.DeviceOpRemove, *ent)
	return nil
}

func (w *World) SetRate(id model.EntityID, rate int64) error {
	ent := w.entities[id]
	if ent == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if err := w.grid.SetRate(id, rate); err != nil {
		return err
	}
	ent.Rate = rate
	w.emitDevice(protocol.DeviceOpUpsert, *ent)
	return nil
}

// SetPlaced picks a device up or puts it down. Picking up drops its wires.
func (w *World) SetPlaced(id model.EntityID, placed bool) error {
	ent := w.entities[id]
	if ent == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if ent.Placed == placed {
		return nil
	}
	if !placed {
		for _, wid := range w.grid.WiresOf(id) {
			if err := w.grid.Disconnect(wid); err != nil {
				return err
			}
		}
	}
	ent.Placed = placed
	w.emitDevice(protocol.DeviceOpUpsert, *ent)
	return nil
}

// MoveEntity updates a device position. Wires stretch; they are not range checked.
func (w *World) MoveEntity(id model.EntityID, pos mgl64.Vec2) error {
	ent := w.entities[id]
	if ent == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	ent.Pos = pos
	w.emitDevice(protocol.DeviceOpUpsert, *ent)
	return nil
}

// ConnectDevices is a simulation-driven connect with no requester.
func (w *World) ConnectDevices(a, b model.EntityID) (model.WireID, error) {
	return w.grid.Connect(a, b, nil)
}

func (w *World) DisconnectWire(id model.WireID) error {
	return w.grid.Disconnect(id)
}

func (w *World) Entity(id model.EntityID) (Entity, bool) {
	ent := w.entities[id]
	if ent == nil {
		return Entity{}, false
	}
	return *ent, true
}

// Entities returns all entities ordered by id.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) deviceInfo(e Entity) protocol.DeviceInfo {
	info := protocol.DeviceInfo{
		EntityID: uint64(e.ID),
		Kind:     e.Kind.String(),
		Rate:     e.Rate,
		Pos:      [2]float64{e.Pos.X(), e.Pos.Y()},
		Placed:   e.Placed,
	}
	if c, ok := w.grid.CircuitOf(e.ID); ok {
		info.CircuitID = uint64(c)
	}
	return info
}
