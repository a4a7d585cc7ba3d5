// Package vehicle models the vehicles an agent can drive or ride: who sits
// in them, how fast they may go and where they are docked.
package vehicle

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
)

// Occupant is anyone who can sit in a vehicle.
type Occupant interface {
	ID() string
}

// Driver is an occupant that can steer.
type Driver interface {
	Occupant
	Style() kinematics.DrivingStyle
	// Overtaking reports whether the driver currently wants to overtake.
	Overtaking() bool
	// Braking reports whether the driver requests an emergency stop.
	Braking() bool
}

// Passenger is an occupant that rides along and is told where the vehicle is.
type Passenger interface {
	Occupant
	Notify(Message)
}

// MessageKind names a notification sent to passengers.
type MessageKind int

const (
	NoDriver MessageKind = iota
	StopReached
	TerminalStation
)

// Message is delivered to every passenger of a vehicle.
type Message struct {
	Kind    MessageKind
	Vehicle *Vehicle
	Node    graph.NodeID
}

// Dock is a rental station or parking space a vehicle is parked at.
type Dock interface {
	DockID() string
}

// Vehicle is one simulated vehicle. Its position is owned by the
// environment; the vehicle only tracks its occupants and speed.
type Vehicle struct {
	Spec
	Kind Kind

	id string

	mu           sync.RWMutex
	driver       Driver
	passengers   map[string]Passenger
	velocity     float64
	acceleration float64
	dock         Dock
}

// New creates a vehicle of kind k with a fresh UUID.
func New(k Kind, spec Spec) *Vehicle {
	return NewWithID(uuid.NewString(), k, spec)
}

// NewWithID creates a vehicle with a caller-chosen identifier.
func NewWithID(id string, k Kind, spec Spec) *Vehicle {
	return &Vehicle{Spec: spec, Kind: k, id: id, passengers: make(map[string]Passenger)}
}

func (v *Vehicle) ID() string               { return v.id }
func (v *Vehicle) Length() float64          { return v.Spec.Length }
func (v *Vehicle) Modality() graph.Modality { return v.Spec.Modality }
func (v *Vehicle) Collides() bool           { return v.Spec.Collision }

func (v *Vehicle) Velocity() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.velocity
}

func (v *Vehicle) Acceleration() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.acceleration
}

// SetMotion records the speed and acceleration reached this tick.
func (v *Vehicle) SetMotion(velocity, acceleration float64) {
	v.mu.Lock()
	v.velocity, v.acceleration = velocity, acceleration
	v.mu.Unlock()
}

// Driver returns the current driver, nil when the seat is free.
func (v *Vehicle) Driver() Driver {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.driver
}

// Passengers returns the current passengers.
func (v *Vehicle) Passengers() []Passenger {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return lo.Values(v.passengers)
}

// Occupied reports whether anyone sits in the vehicle.
func (v *Vehicle) Occupied() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.driver != nil || len(v.passengers) > 0
}

// Contains reports whether o is the driver or a passenger.
func (v *Vehicle) Contains(o Occupant) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.contains(o.ID())
}

func (v *Vehicle) contains(id string) bool {
	if v.driver != nil && v.driver.ID() == id {
		return true
	}
	_, ok := v.passengers[id]
	return ok
}

// TryEnterDriver seats d behind the wheel if the seat is free and d is not
// already aboard.
func (v *Vehicle) TryEnterDriver(d Driver) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.driver != nil || v.contains(d.ID()) {
		return false
	}
	v.driver = d
	return true
}

// TryEnterPassenger adds p if there is a free seat and p is not aboard.
func (v *Vehicle) TryEnterPassenger(p Passenger) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.passengers) >= v.Capacity || v.contains(p.ID()) {
		return false
	}
	v.passengers[p.ID()] = p
	return true
}

// Leave removes o from the vehicle. When the driver leaves, passengers are
// told the vehicle has no driver.
func (v *Vehicle) Leave(o Occupant) bool {
	v.mu.Lock()
	if v.driver != nil && v.driver.ID() == o.ID() {
		v.driver = nil
		v.velocity, v.acceleration = 0, 0
		v.mu.Unlock()
		v.Notify(Message{Kind: NoDriver, Vehicle: v})
		return true
	}
	_, ok := v.passengers[o.ID()]
	delete(v.passengers, o.ID())
	v.mu.Unlock()
	return ok
}

// Notify forwards m to every passenger.
func (v *Vehicle) Notify(m Message) {
	m.Vehicle = v
	for _, p := range v.Passengers() {
		p.Notify(m)
	}
}

// Dock returns where the vehicle is parked, nil while in use.
func (v *Vehicle) Dock() Dock {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dock
}

// SetDock records where the vehicle is parked; nil clears it.
func (v *Vehicle) SetDock(d Dock) {
	v.mu.Lock()
	v.dock = d
	v.mu.Unlock()
}

// TurningSpeed returns the limit for turn class d and whether one applies.
func (v *Vehicle) TurningSpeed(d graph.DirectionType) (float64, bool) {
	if v.TurningSpeeds == nil {
		return 0, false
	}
	return v.TurningSpeeds.Speed(d)
}
