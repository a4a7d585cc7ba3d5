package environment

import (
	"cmp"
	"slices"

	"github.com/cxd309/mms-engine/internal/graph"
)

// Explore looks up to distance metres ahead along route and reports, per
// upcoming stop, the entities on each lane, the distance to the stop's end
// node and the signal phase for the movement onto the next stop. Entities
// behind the explorer are reported for its current edge and, within
// distance, for the edges leading into it.
func (env *Environment) Explore(e Entity, route *graph.Route, distance float64) ExploreResult {
	stops := route.Stops()
	if len(stops) == 0 {
		return ExploreResult{}
	}
	env.mu.RLock()
	defer env.mu.RUnlock()

	front := route.Offset()
	rear := front - e.Length()
	start := 0.0 // distance from the explorer's front to the stop's start node
	var res ExploreResult
	for i, s := range stops {
		x := EdgeExplore{Stop: s, Ahead: make([][]Sighting, s.Edge.Lanes)}
		if i+1 < len(stops) {
			x.Next = stops[i+1]
		}
		if i == 0 {
			start = -front
			x.Behind = make([][]Sighting, s.Edge.Lanes)
		}
		x.DistanceToEnd = start + s.Edge.Length

		for lane, occ := range env.lanes[s.Edge.ID] {
			for _, q := range occ {
				if q.entity.ID() == e.ID() {
					continue
				}
				if i == 0 && q.Offset <= front {
					x.Behind[lane] = append(x.Behind[lane], Sighting{Entity: q.entity, Gap: rear - q.Offset})
					continue
				}
				gap := start + q.Offset - q.entity.Length()
				if gap > distance {
					continue
				}
				x.Ahead[lane] = append(x.Ahead[lane], Sighting{Entity: q.entity, Gap: gap})
			}
		}
		if i == 0 {
			env.lookBack(s.Edge, rear, distance, x.Behind)
		}
		byGap := func(a, b Sighting) int { return cmp.Compare(a.Gap, b.Gap) }
		for lane := range x.Ahead {
			slices.SortFunc(x.Ahead[lane], byGap)
		}
		for lane := range x.Behind {
			slices.SortFunc(x.Behind[lane], byGap)
		}

		if x.Next != nil {
			x.Phase, x.Signalized = env.lights.Phase(s.Edge.V, s.Edge.ID, x.Next.Edge.ID)
		}
		res.Edges = append(res.Edges, x)

		start = x.DistanceToEnd
		if start >= distance {
			break
		}
	}
	return res
}

// lookBack adds the entities on the edges upstream of edge whose front is
// within distance of the explorer's rear at offset rear. Upstream lanes map
// onto edge's lanes by index. The reverse of an edge is not upstream of it.
func (env *Environment) lookBack(edge *graph.Edge, rear, distance float64, behind [][]Sighting) {
	type reach struct {
		edge *graph.Edge
		back float64 // from the explorer's rear back to edge's start node
	}
	seen := map[graph.EdgeID]bool{edge.ID: true}
	queue := []reach{{edge, rear}}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for _, in := range env.graph.Incoming(r.edge.U) {
			if seen[in.ID] || in.U == r.edge.V {
				continue
			}
			seen[in.ID] = true
			for lane, occ := range env.lanes[in.ID] {
				l := min(lane, len(behind)-1)
				for _, q := range occ {
					if gap := r.back + in.Length - q.Offset; gap <= distance {
						behind[l] = append(behind[l], Sighting{Entity: q.entity, Gap: gap})
					}
				}
			}
			if next := r.back + in.Length; next < distance {
				queue = append(queue, reach{in, next})
			}
		}
	}
}

// Nearest returns the closest sighting ahead across every explored stop on
// the lane the route uses there.
func (r ExploreResult) Nearest() (Sighting, bool) {
	for _, x := range r.Edges {
		if s, ok := x.FirstAhead(x.Stop.DesiredLane); ok {
			return s, true
		}
	}
	return Sighting{}, false
}

// CountAhead counts every entity ahead within distance on any lane.
func (r ExploreResult) CountAhead(distance float64) int {
	n := 0
	for _, x := range r.Edges {
		for _, lane := range x.Ahead {
			for _, s := range lane {
				if s.Gap <= distance {
					n++
				}
			}
		}
	}
	return n
}
