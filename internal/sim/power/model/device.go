package model

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the device variant. The rate stored next to it on Device is a supply
// rate for generators and a demand rate for consumers.
type Kind uint8

const (
	KindGenerator Kind = iota + 1
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindGenerator:
		return "GENERATOR"
	case KindConsumer:
		return "CONSUMER"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseKind accepts the wire names used in configs and protocol messages.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GENERATOR":
		return KindGenerator, nil
	case "CONSUMER":
		return KindConsumer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) valid() bool { return k == KindGenerator || k == KindConsumer }

// Device is the power record of one entity.
type Device struct {
	Entity  EntityID
	Kind    Kind
	Rate    int64
	Circuit CircuitID
}

func (d Device) IsGenerator() bool { return d.Kind == KindGenerator }
func (d Device) IsConsumer() bool  { return d.Kind == KindConsumer }

// Registry holds one Device per power-capable entity.
//
// Not goroutine-safe; it is owned by a single circuit manager.
type Registry struct {
	devices map[EntityID]*Device
}

func NewRegistry() *Registry {
	return &Registry{devices: map[EntityID]*Device{}}
}

func (r *Registry) Register(id EntityID, kind Kind, rate int64) error {
	if id == 0 {
		return fmt.Errorf("%w: entity 0", ErrNotFound)
	}
	if !kind.valid() {
		return ErrInvalidKind
	}
	if _, ok := r.devices[id]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceExists, id)
	}
	r.devices[id] = &Device{Entity: id, Kind: kind, Rate: rate}
	return nil
}

// Unregister drops the device. Callers must have detached its wires first.
func (r *Registry) Unregister(id EntityID) error {
	if _, ok := r.devices[id]; !ok {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	delete(r.devices, id)
	return nil
}

func (r *Registry) Get(id EntityID) (Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	return *d, nil
}

func (r *Registry) Has(id EntityID) bool {
	_, ok := r.devices[id]
	return ok
}

// SetRate updates the supply or demand rate; rates change at runtime (fuel, load).
func (r *Registry) SetRate(id EntityID, rate int64) error {
	d, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	d.Rate = rate
	return nil
}

// SetCircuit re-points the device's circuit membership. Only managers call this.
func (r *Registry) SetCircuit(id EntityID, c CircuitID) {
	if d, ok := r.devices[id]; ok {
		d.Circuit = c
	}
}

func (r *Registry) Len() int { return len(r.devices) }

// All returns copies of every device ordered by entity id.
func (r *Registry) All() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

func (r *Registry) rate(id EntityID) int64 {
	if d, ok := r.devices[id]; ok {
		return d.Rate
	}
	return 0
}
