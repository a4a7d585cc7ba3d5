package graph

import (
	"errors"
	"fmt"
)

const epsilon = 1e-9

// Stop is one edge of a route together with the lane the occupant wants to
// use on it.
type Stop struct {
	Edge        *Edge
	DesiredLane int
}

// Route is an ordered, contiguous sequence of stops with progress tracking.
// Passed stops are dropped from Stops; the current stop is always first.
type Route struct {
	stops  []*Stop
	index  int
	offset float64 // metres travelled on the current stop's edge
}

// ErrDiscontinuous is returned when consecutive stops do not share a node.
var ErrDiscontinuous = errors.New("route stops are not contiguous")

// NewRoute builds a route over stops, starting at offset on the first edge.
func NewRoute(stops []*Stop, offset float64) (*Route, error) {
	for i := 1; i < len(stops); i++ {
		if stops[i-1].Edge.V != stops[i].Edge.U {
			return nil, fmt.Errorf("stop %d (%s) to stop %d (%s): %w",
				i-1, stops[i-1].Edge.ID, i, stops[i].Edge.ID, ErrDiscontinuous)
		}
	}
	if len(stops) > 0 && (offset < 0 || offset > stops[0].Edge.Length) {
		return nil, fmt.Errorf("offset %.2f outside edge %s", offset, stops[0].Edge.ID)
	}
	return &Route{stops: stops, offset: offset}, nil
}

// RouteFromPath converts a shortest-path result into a route, placing each
// stop on the first lane the modality may use.
func RouteFromPath(p PathInfo, m Modality) (*Route, error) {
	stops := make([]*Stop, 0, len(p.Edges))
	for _, e := range p.Edges {
		r, ok := e.LaneRange(m)
		if !ok {
			return nil, fmt.Errorf("edge %s does not allow %s", e.ID, m)
		}
		stops = append(stops, &Stop{Edge: e, DesiredLane: r.First})
	}
	return NewRoute(stops, 0)
}

// Stops returns the remaining stops, current first.
func (r *Route) Stops() []*Stop {
	if r == nil || r.index >= len(r.stops) {
		return nil
	}
	return r.stops[r.index:]
}

// Len returns the number of remaining stops.
func (r *Route) Len() int { return len(r.Stops()) }

// Current returns the current stop or nil when the route is exhausted.
func (r *Route) Current() *Stop {
	s := r.Stops()
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

// Offset returns the distance travelled on the current edge.
func (r *Route) Offset() float64 { return r.offset }

// Start returns the node the remaining route starts from.
func (r *Route) Start() NodeID {
	if c := r.Current(); c != nil {
		return c.Edge.U
	}
	return ""
}

// Goal returns the final node of the route.
func (r *Route) Goal() NodeID {
	if r == nil || len(r.stops) == 0 {
		return ""
	}
	return r.stops[len(r.stops)-1].Edge.V
}

// RemainingOnEdge returns the distance left on the current edge.
func (r *Route) RemainingOnEdge() float64 {
	c := r.Current()
	if c == nil {
		return 0
	}
	return c.Edge.Length - r.offset
}

// RemainingDistanceToGoal sums the distance left on every remaining stop.
func (r *Route) RemainingDistanceToGoal() float64 {
	stops := r.Stops()
	if len(stops) == 0 {
		return 0
	}
	total := stops[0].Edge.Length - r.offset
	for _, s := range stops[1:] {
		total += s.Edge.Length
	}
	return total
}

// GoalReached reports whether the end of the last stop has been reached.
func (r *Route) GoalReached() bool {
	if r == nil {
		return true
	}
	n := len(r.stops)
	if r.index >= n {
		return true
	}
	return r.index == n-1 && r.offset >= r.stops[n-1].Edge.Length-epsilon
}

// Advance moves progress forward by d metres, crossing edge boundaries as
// needed and stopping at the goal. It returns the distance actually covered.
func (r *Route) Advance(d float64) float64 {
	covered := 0.0
	for d > epsilon && r.index < len(r.stops) {
		rest := r.stops[r.index].Edge.Length - r.offset
		if d < rest {
			r.offset += d
			return covered + d
		}
		covered += rest
		d -= rest
		if r.index == len(r.stops)-1 {
			r.offset = r.stops[r.index].Edge.Length
			return covered
		}
		r.index++
		r.offset = 0
	}
	return covered
}

// Peek returns the stop and offset that Advance(d) would reach, without
// changing the route.
func (r *Route) Peek(d float64) (*Stop, float64) {
	probe := *r
	probe.Advance(d)
	if probe.index >= len(probe.stops) {
		return nil, 0
	}
	return probe.stops[probe.index], probe.offset
}

// JumpToGoal marks the route as completed.
func (r *Route) JumpToGoal() {
	if len(r.stops) == 0 {
		return
	}
	r.index = len(r.stops) - 1
	r.offset = r.stops[r.index].Edge.Length
}

// Contains reports whether the remaining route passes through node.
func (r *Route) Contains(node NodeID) bool {
	for _, s := range r.Stops() {
		if s.Edge.V == node {
			return true
		}
	}
	return false
}
