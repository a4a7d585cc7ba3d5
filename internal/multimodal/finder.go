package multimodal

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/parking"
	"github.com/cxd309/mms-engine/internal/rental"
	"github.com/cxd309/mms-engine/internal/transit"
)

// Layers bundles what travellers share: the network and the infrastructure
// they pick vehicles up from. Any layer but Env may be nil.
type Layers struct {
	Env     *environment.Environment
	Bikes   *rental.Layer
	Cars    *rental.Layer
	Parking *parking.Layer
	Fleet   *transit.Fleet
}

// Finder builds multimodal routes for a traveller.
type Finder struct {
	layers *Layers
}

// NewFinder returns a finder over layers.
func NewFinder(layers *Layers) *Finder { return &Finder{layers: layers} }

// Find returns a route from one node to another whose main mode is mode.
// Own vehicles are looked up on t, which may be nil for walking.
func (f *Finder) Find(t *Traveler, from, to graph.NodeID, mode ModalChoice) (*Route, error) {
	if from == to {
		return nil, fault.Transient("multimodal.Find", "already at "+to)
	}
	switch mode {
	case Walking:
		return f.walking(from, to)
	case CyclingOwnBike:
		return f.ownBike(t, from, to)
	case CyclingRentalBike:
		return f.rental(t, f.layers.Bikes, mode, from, to)
	case CarDriving:
		return f.ownCar(t, from, to)
	case CarRentalDriving:
		return f.rental(t, f.layers.Cars, mode, from, to)
	case CoDriving:
		r := &Route{}
		if err := f.leg(r, CoDriving, from, to); err != nil {
			return nil, err
		}
		return r, nil
	case Bus, Train, Ferry:
		return f.transit(mode, from, to)
	}
	return nil, fault.Configuration("multimodal.Find", fmt.Sprintf("unknown modal choice %q", mode))
}

// FindOrWalk is Find falling back to walking when mode cannot serve the trip.
func (f *Finder) FindOrWalk(t *Traveler, from, to graph.NodeID, mode ModalChoice) (*Route, error) {
	r, err := f.Find(t, from, to, mode)
	if err == nil || mode == Walking {
		return r, err
	}
	return f.walking(from, to)
}

func (f *Finder) walking(from, to graph.NodeID) (*Route, error) {
	r := &Route{}
	if err := f.leg(r, Walking, from, to); err != nil {
		return nil, err
	}
	return r, nil
}

// leg appends the shortest mode route between two distinct nodes.
func (f *Finder) leg(r *Route, mode ModalChoice, from, to graph.NodeID) error {
	if from == to {
		return nil
	}
	gr, err := f.layers.Env.FindShortestRoute(from, to, mode.Modality(), nil)
	if err != nil {
		return fault.Wrap(fault.CodeTransient, "multimodal.leg", fmt.Errorf("%s from %s to %s: %w", mode, from, to, err))
	}
	r.Add(mode, gr)
	return nil
}

// around walks to the vehicle, rides it and walks to the goal.
func (f *Finder) around(mode ModalChoice, from, pickUp, dropOff, to graph.NodeID) (*Route, error) {
	if pickUp == dropOff {
		return nil, fault.Transient("multimodal.Find", fmt.Sprintf("%s would not move from %s", mode, pickUp))
	}
	r := &Route{}
	for _, l := range []struct {
		mode     ModalChoice
		from, to graph.NodeID
	}{{Walking, from, pickUp}, {mode, pickUp, dropOff}, {Walking, dropOff, to}} {
		if err := f.leg(r, l.mode, l.from, l.to); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// rental rides from the closest station with a vehicle to the station
// closest to the goal. A traveller already riding keeps its vehicle.
func (f *Finder) rental(t *Traveler, layer *rental.Layer, mode ModalChoice, from, to graph.NodeID) (*Route, error) {
	if layer == nil || len(layer.Stations()) == 0 {
		return nil, fault.Configuration("multimodal.Find", fmt.Sprintf("no rental stations for %s", mode))
	}
	pickUp := from
	if t == nil || !t.ridingKind(layer.Kind) {
		start, ok := layer.Nearest(f.loc(from), rental.HasVehicle)
		if !ok {
			return nil, fault.Transient("multimodal.Find", "no rental vehicle available")
		}
		pickUp = start.Node
	}
	goal, _ := layer.Nearest(f.loc(to), nil)
	return f.around(mode, from, pickUp, goal.Node, to)
}

func (f *Finder) ownBike(t *Traveler, from, to graph.NodeID) (*Route, error) {
	if t == nil || t.bike == nil {
		return nil, fault.Configuration("multimodal.Find", "traveller has no bicycle")
	}
	at := t.bikeAt
	if t.riding(t.bike) {
		at = from
	}
	r := &Route{}
	if err := f.leg(r, Walking, from, at); err != nil {
		return nil, err
	}
	if at == to {
		return nil, fault.Transient("multimodal.Find", "bicycle is parked at the goal")
	}
	if err := f.leg(r, CyclingOwnBike, at, to); err != nil {
		return nil, err
	}
	return r, nil
}

// ownCar drives from the car's space to the free space closest to the goal,
// or to the goal itself when every space is taken.
func (f *Finder) ownCar(t *Traveler, from, to graph.NodeID) (*Route, error) {
	if t == nil || t.car == nil {
		return nil, fault.Configuration("multimodal.Find", "traveller has no car")
	}
	at := t.carAt()
	if t.riding(t.car) {
		at = from
	}
	park := to
	if f.layers.Parking != nil {
		if space, ok := f.layers.Parking.Nearest(f.loc(to), parking.WithCapacity); ok {
			park = space.Node
		}
	}
	return f.around(CarDriving, from, at, park, to)
}

// transit rides from the stop closest to from to the stop closest to to.
func (f *Finder) transit(mode ModalChoice, from, to graph.NodeID) (*Route, error) {
	kind, _ := mode.transitKind()
	if f.layers.Fleet == nil {
		return nil, fault.Configuration("multimodal.Find", "no transit fleet")
	}
	stops := f.layers.Fleet.Stops(kind)
	if len(stops) < 2 {
		return nil, fault.Transient("multimodal.Find", fmt.Sprintf("no %s line", mode))
	}
	board, alight := f.closest(stops, from), f.closest(stops, to)
	return f.around(mode, from, board, alight, to)
}

func (f *Finder) closest(nodes []graph.NodeID, to graph.NodeID) graph.NodeID {
	p := f.loc(to)
	return lo.MinBy(nodes, func(a, b graph.NodeID) bool {
		return planar.DistanceSquared(p, f.loc(a)) < planar.DistanceSquared(p, f.loc(b))
	})
}

func (f *Finder) loc(id graph.NodeID) orb.Point {
	n, _ := f.layers.Env.Graph().GetNode(id)
	return n.Loc
}
