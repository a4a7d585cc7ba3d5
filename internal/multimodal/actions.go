package multimodal

import (
	"github.com/paulmach/orb"

	"github.com/cxd309/mms-engine/internal/parking"
	"github.com/cxd309/mms-engine/internal/rental"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// enter runs the entry action of leg's mode and makes the new handle active.
func (t *Traveler) enter(leg Leg) bool {
	if leg.Route == nil || leg.Route.GoalReached() {
		return false
	}
	var ok bool
	switch leg.Mode {
	case Walking:
		ok = t.enterWalking(leg)
	case CyclingOwnBike:
		ok = t.bike != nil && t.bikeAt == leg.Route.Start() && t.drive(t.bike, leg)
	case CyclingRentalBike:
		ok = t.rent(t.layers.Bikes, leg)
	case CarDriving:
		ok = t.enterOwnCar(leg)
	case CarRentalDriving:
		ok = t.rent(t.layers.Cars, leg)
	case CoDriving:
		ok = t.coDrive(leg)
	case Bus, Train, Ferry:
		ok = t.board(leg)
	}
	if ok {
		t.log.WithField("mode", leg.Mode).Debug("entered")
	}
	return ok
}

func (t *Traveler) enterWalking(leg Leg) bool {
	h, err := steering.EnterWalking(t.layers.Env, t.shoes, t, t.preferred)
	if err != nil {
		return false
	}
	if !t.layers.Env.Insert(t.shoes, leg.Route.Start()) || h.SetRoute(leg.Route) != nil {
		h.Leave()
		t.layers.Env.Remove(t.shoes)
		return false
	}
	t.active = h
	return true
}

// drive places v at the start of leg and takes its driver's seat.
func (t *Traveler) drive(v *vehicle.Vehicle, leg Leg) bool {
	env := t.layers.Env
	inserted := !env.Contains(v) && env.Insert(v, leg.Route.Start())
	h, err := steering.EnterDriver(env, v, t, t.opts)
	if err == nil {
		err = h.SetRoute(leg.Route)
		if err != nil {
			h.Leave()
		}
	}
	if err != nil {
		t.log.WithError(err).Debug("cannot drive")
		if inserted {
			env.Remove(v)
		}
		return false
	}
	t.active = h
	return true
}

// rent takes any vehicle from the station closest to the traveller.
func (t *Traveler) rent(layer *rental.Layer, leg Leg) bool {
	if layer == nil {
		return false
	}
	st, ok := layer.Nearest(t.point(), rental.HasVehicle)
	if !ok {
		return false
	}
	v, ok := st.RentAny()
	if !ok {
		return false
	}
	if !t.drive(v, leg) {
		st.Enter(v)
		return false
	}
	return true
}

func (t *Traveler) enterOwnCar(leg Leg) bool {
	if t.car == nil || t.carAt() != leg.Route.Start() {
		return false
	}
	space, parked := t.car.Dock().(*parking.Space)
	if parked {
		space.Leave(t.car)
	}
	if !t.drive(t.car, leg) {
		if parked {
			space.Enter(t.car)
		}
		return false
	}
	t.carLot = ""
	return true
}

// coDrive rides along in the own car while someone else drives it.
func (t *Traveler) coDrive(leg Leg) bool {
	if t.car == nil || t.car.Driver() == nil {
		return false
	}
	h, err := steering.EnterPassenger(t.car, t, leg.Route.Goal())
	if err != nil {
		return false
	}
	t.active = h
	return true
}

// board gets on a service standing at the traveller's stop that will stop
// at the leg goal.
func (t *Traveler) board(leg Leg) bool {
	kind, _ := leg.Mode.transitKind()
	if t.layers.Fleet == nil {
		return false
	}
	svc, ok := t.layers.Fleet.Boardable(t.at, leg.Route.Goal(), kind)
	if !ok {
		return false
	}
	h, err := svc.Board(t, leg.Route.Goal())
	if err != nil {
		return false
	}
	if err := h.SetRoute(leg.Route); err != nil {
		h.Leave()
		return false
	}
	t.active = h
	return true
}

// leave runs the leave action of mode. The active handle is dropped only
// when it succeeds.
func (t *Traveler) leave(mode ModalChoice) bool {
	if t.active == nil {
		return true
	}
	if !t.holds(mode) {
		t.log.WithField("mode", mode).Warn("active handle does not belong to the mode being left")
		return false
	}
	v := t.active.Vehicle()
	var ok bool
	switch mode {
	case Walking:
		ok = t.active.Leave()
		t.layers.Env.Remove(t.shoes)
	case CyclingRentalBike:
		ok = t.giveBack(t.layers.Bikes, v)
	case CarRentalDriving:
		ok = t.giveBack(t.layers.Cars, v)
	case CarDriving:
		ok = t.park(v)
	case CyclingOwnBike:
		ok = t.active.Leave()
		t.layers.Env.Remove(v)
		t.bikeAt = t.at
	default:
		ok = t.active.Leave()
	}
	if !ok {
		return false
	}
	t.log.WithField("mode", mode).Debug("left")
	t.active = nil
	return true
}

// holds reports whether the active handle is the one mode is left from.
func (t *Traveler) holds(mode ModalChoice) bool {
	switch h := t.active.(type) {
	case *steering.WalkingHandle:
		return mode == Walking
	case *steering.PassengerHandle:
		_, transit := mode.transitKind()
		return transit || mode == CoDriving
	case *steering.DriverHandle:
		v := h.Vehicle()
		switch mode {
		case CyclingOwnBike:
			return v == t.bike
		case CarDriving:
			return v == t.car
		case CyclingRentalBike:
			return v.Kind == vehicle.KindBicycle && v != t.bike
		case CarRentalDriving:
			return v.Kind == vehicle.KindCar && v != t.car
		}
	}
	return false
}

// giveBack returns a rented vehicle to the station closest to the traveller.
func (t *Traveler) giveBack(layer *rental.Layer, v *vehicle.Vehicle) bool {
	if layer == nil {
		return false
	}
	st, ok := layer.Nearest(t.point(), nil)
	if !ok || !t.active.Leave() {
		return false
	}
	st.Enter(v)
	t.layers.Env.Remove(v)
	return true
}

// park puts the own car into the closest space with capacity. Without a
// parking layer the car stays at the kerb.
func (t *Traveler) park(v *vehicle.Vehicle) bool {
	if t.layers.Parking == nil {
		if !t.active.Leave() {
			return false
		}
		t.layers.Env.Remove(v)
		t.carLot = t.at
		return true
	}
	space, ok := t.layers.Parking.Nearest(t.point(), parking.WithCapacity)
	if !ok || !space.Enter(v) {
		return false
	}
	if !t.active.Leave() {
		space.Leave(v)
		return false
	}
	t.layers.Env.Remove(v)
	return true
}

func (t *Traveler) point() orb.Point {
	n, _ := t.layers.Env.Graph().GetNode(t.at)
	return n.Loc
}
