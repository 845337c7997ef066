package model

import "strconv"

// EntityID identifies a world entity. Zero is never a valid entity.
type EntityID uint64

// CircuitID identifies a circuit. Zero means "no circuit".
type CircuitID uint64

// WireID identifies a wire. Zero is never a valid wire.
type WireID uint64

// PlayerID identifies the player behind a remote request.
type PlayerID string

func (id EntityID) String() string  { return "E" + strconv.FormatUint(uint64(id), 10) }
func (id CircuitID) String() string { return "C" + strconv.FormatUint(uint64(id), 10) }
func (id WireID) String() string    { return "W" + strconv.FormatUint(uint64(id), 10) }

// Valid reports whether the circuit id refers to a circuit.
func (id CircuitID) Valid() bool { return id != 0 }
