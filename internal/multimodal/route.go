// Package multimodal lets one traveller complete a journey across several
// transport modes: walking to a rental station, cycling, riding a bus and so
// on. A Traveler owns a Route of legs and switches its active steering
// handle whenever a leg ends.
package multimodal

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// ModalChoice is the transport mode of one leg.
type ModalChoice string

const (
	Walking           ModalChoice = "walking"
	CyclingOwnBike    ModalChoice = "cycling-own-bike"
	CyclingRentalBike ModalChoice = "cycling-rental-bike"
	CarDriving        ModalChoice = "car-driving"
	CarRentalDriving  ModalChoice = "car-rental-driving"
	CoDriving         ModalChoice = "co-driving"
	Bus               ModalChoice = "bus"
	Train             ModalChoice = "train"
	Ferry             ModalChoice = "ferry"
)

var modalChoices = []ModalChoice{
	Walking, CyclingOwnBike, CyclingRentalBike, CarDriving, CarRentalDriving, CoDriving, Bus, Train, Ferry,
}

// ParseModalChoice validates a configured mode; empty means walking.
func ParseModalChoice(s string) (ModalChoice, error) {
	if s == "" {
		return Walking, nil
	}
	if m := ModalChoice(s); lo.Contains(modalChoices, m) {
		return m, nil
	}
	return "", fmt.Errorf("unknown modal choice %q", s)
}

// Modality returns the network modality legs of mode m travel on.
func (m ModalChoice) Modality() graph.Modality {
	switch m {
	case Walking:
		return graph.ModalityWalking
	case CyclingOwnBike, CyclingRentalBike:
		return graph.ModalityCycling
	case Train:
		return graph.ModalityRail
	case Ferry:
		return graph.ModalityShip
	}
	return graph.ModalityRoad
}

// transitKind returns the vehicle kind of a scheduled mode.
func (m ModalChoice) transitKind() (vehicle.Kind, bool) {
	switch m {
	case Bus:
		return vehicle.KindBus, true
	case Train:
		return vehicle.KindTrain, true
	case Ferry:
		return vehicle.KindFerry, true
	}
	return "", false
}

// Leg is one part of a journey travelled with a single mode.
type Leg struct {
	Mode  ModalChoice
	Route *graph.Route
}

// Route is an ordered list of legs with exactly one current leg.
type Route struct {
	legs    []Leg
	current int
}

// NewRoute returns a route starting at the first of legs.
func NewRoute(legs ...Leg) *Route {
	return &Route{legs: legs}
}

// Add appends a leg. Empty routes are skipped.
func (r *Route) Add(mode ModalChoice, route *graph.Route) {
	if route == nil || route.Len() == 0 {
		return
	}
	r.legs = append(r.legs, Leg{Mode: mode, Route: route})
}

// Legs returns every leg, finished ones included.
func (r *Route) Legs() []Leg { return r.legs }

// Len returns the number of legs.
func (r *Route) Len() int { return len(r.legs) }

// Current returns the current leg.
func (r *Route) Current() (Leg, bool) {
	if r.current >= len(r.legs) {
		return Leg{}, false
	}
	return r.legs[r.current], true
}

// Mode returns the mode of the current leg, walking when there is none.
func (r *Route) Mode() ModalChoice {
	if leg, ok := r.Current(); ok {
		return leg.Mode
	}
	return Walking
}

// Next moves on to the following leg. It never moves past the last one and
// reports whether it moved.
func (r *Route) Next() bool {
	if r.current+1 >= len(r.legs) {
		return false
	}
	r.current++
	return true
}

// AppendAndDeleteTail replaces every leg after the current one with the legs
// of other.
func (r *Route) AppendAndDeleteTail(other *Route) {
	keep := min(r.current+1, len(r.legs))
	r.legs = append(r.legs[:keep:keep], other.legs...)
}

// Main returns the first mode that is not walking, or walking.
func (r *Route) Main() ModalChoice {
	leg, ok := lo.Find(r.legs, func(l Leg) bool { return l.Mode != Walking })
	if !ok {
		return Walking
	}
	return leg.Mode
}

// Start returns the first node of the journey.
func (r *Route) Start() graph.NodeID {
	if len(r.legs) == 0 {
		return ""
	}
	return r.legs[0].Route.Start()
}

// Goal returns the final node of the journey.
func (r *Route) Goal() graph.NodeID {
	if len(r.legs) == 0 {
		return ""
	}
	return r.legs[len(r.legs)-1].Route.Goal()
}

// GoalReached holds when the last leg is current and has reached its goal.
func (r *Route) GoalReached() bool {
	if len(r.legs) == 0 {
		return true
	}
	return r.current == len(r.legs)-1 && r.legs[r.current].Route.GoalReached()
}

// Length sums the remaining length of every leg from the current one on.
func (r *Route) Length() float64 {
	if r.current >= len(r.legs) {
		return 0
	}
	return lo.SumBy(r.legs[r.current:], func(l Leg) float64 { return l.Route.RemainingDistanceToGoal() })
}

func (r *Route) String() string {
	modes := lo.Map(r.legs, func(l Leg, _ int) string { return string(l.Mode) })
	return fmt.Sprintf("%v@%d", modes, r.current)
}
