// Package environment is the shared spatial environment the simulation core
// moves entities through: lane-level occupancy of every edge, exploration of
// the road ahead, intersection claims and route search.
package environment

import (
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/trafficlight"
)

// Entity is anything that occupies space on a lane.
type Entity interface {
	ID() string
	Length() float64 // metres
	Velocity() float64
	Acceleration() float64
	Modality() graph.Modality
}

// Collider is implemented by entities that must not overlap others on a lane.
// Entities without it, pedestrians for instance, share lanes freely.
type Collider interface {
	Collides() bool
}

func collides(e Entity) bool {
	c, ok := e.(Collider)
	return ok && c.Collides()
}

// Sighting is another entity seen during exploration. Gap is the free
// distance between the two: from the explorer's front to the other's rear
// when ahead, and from the other's front to the explorer's rear when behind.
type Sighting struct {
	Entity Entity
	Gap    float64
}

// EdgeExplore is the lane-resolved view of one upcoming route stop.
type EdgeExplore struct {
	Stop          *graph.Stop
	Next          *graph.Stop // nil on the last stop of the route
	DistanceToEnd float64     // from the explorer's front to the edge's end node
	Ahead         [][]Sighting
	Behind        [][]Sighting // populated for the explorer's current edge only
	Phase         trafficlight.Phase
	Signalized    bool
}

// FirstAhead returns the nearest entity ahead on lane, if any.
func (x EdgeExplore) FirstAhead(lane int) (Sighting, bool) {
	if lane < 0 || lane >= len(x.Ahead) || len(x.Ahead[lane]) == 0 {
		return Sighting{}, false
	}
	return x.Ahead[lane][0], true
}

// FirstBehind returns the nearest entity behind on lane, if any.
func (x EdgeExplore) FirstBehind(lane int) (Sighting, bool) {
	if lane < 0 || lane >= len(x.Behind) || len(x.Behind[lane]) == 0 {
		return Sighting{}, false
	}
	return x.Behind[lane][0], true
}

// ExploreResult is the snapshot of the surroundings up to an explore distance.
type ExploreResult struct {
	Edges []EdgeExplore
}
