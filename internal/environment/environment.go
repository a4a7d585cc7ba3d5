package environment

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/trafficlight"
)

// Placement is where an entity currently is. Edge is nil while the entity
// waits at Node.
type Placement struct {
	Node   graph.NodeID
	Edge   *graph.Edge
	Lane   int
	Offset float64 // position of the entity's front along Edge
}

type placement struct {
	Placement
	entity Entity
}

// Environment is the in-memory spatial graph environment. Insert, Move and
// Remove serialise on one lock; exploration runs under the read lock.
type Environment struct {
	graph  *graph.Graph
	lights *trafficlight.Layer
	claims *ClaimRegistry
	tick   atomic.Int64

	mu     sync.RWMutex
	places map[string]*placement
	lanes  map[graph.EdgeID][][]*placement // per lane, ordered by offset
}

// New creates an environment over g. lights may be nil.
func New(g *graph.Graph, lights *trafficlight.Layer) *Environment {
	return &Environment{
		graph:  g,
		lights: lights,
		claims: NewClaimRegistry(),
		places: make(map[string]*placement),
		lanes:  make(map[graph.EdgeID][][]*placement),
	}
}

// Graph returns the underlying network.
func (env *Environment) Graph() *graph.Graph { return env.graph }

// Lights returns the traffic light layer, possibly nil.
func (env *Environment) Lights() *trafficlight.Layer { return env.lights }

// SetTick records the current simulation tick; claims are stamped with it.
func (env *Environment) SetTick(t int64) { env.tick.Store(t) }

// Tick returns the current simulation tick.
func (env *Environment) Tick() int64 { return env.tick.Load() }

// NearestNode returns the node closest to p usable by modality m.
func (env *Environment) NearestNode(p orb.Point, m graph.Modality) (graph.Node, error) {
	return env.graph.NearestNode(p, m)
}

// FindShortestRoute searches a route from → to over edges usable by m and
// accepted by filter.
func (env *Environment) FindShortestRoute(from, to graph.NodeID, m graph.Modality, filter graph.EdgeFilter) (*graph.Route, error) {
	accept := func(e *graph.Edge) bool {
		return e.Allows(m) && (filter == nil || filter(e))
	}
	p, err := env.graph.ShortestPath(from, to, accept)
	if err != nil {
		return nil, err
	}
	return graph.RouteFromPath(p, m)
}

// Insert places e at node. It fails if e is already in the environment.
func (env *Environment) Insert(e Entity, node graph.NodeID) bool {
	if _, err := env.graph.GetNode(node); err != nil {
		return false
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if _, ok := env.places[e.ID()]; ok {
		return false
	}
	env.places[e.ID()] = &placement{Placement: Placement{Node: node}, entity: e}
	return true
}

// InsertAt places e on a lane of edge with its front at offset. Colliding
// entities are rejected when the spot is taken.
func (env *Environment) InsertAt(e Entity, edge *graph.Edge, lane int, offset float64) bool {
	if lane < 0 || lane >= edge.Lanes || offset < 0 || offset > edge.Length {
		return false
	}
	env.mu.Lock()
	defer env.mu.Unlock()
	if _, ok := env.places[e.ID()]; ok {
		return false
	}
	if collides(e) && !env.laneFree(edge, lane, offset, e) {
		return false
	}
	p := &placement{Placement: Placement{Edge: edge, Lane: lane, Offset: offset}, entity: e}
	env.places[e.ID()] = p
	env.addToLane(p)
	return true
}

// Remove takes e out of the environment and drops its intersection claims.
func (env *Environment) Remove(e Entity) bool {
	env.mu.Lock()
	defer env.mu.Unlock()
	p, ok := env.places[e.ID()]
	if !ok {
		return false
	}
	env.removeFromLane(p)
	delete(env.places, e.ID())
	env.claims.ReleaseAll(e.ID())
	return true
}

// Contains reports whether e is in the environment.
func (env *Environment) Contains(e Entity) bool {
	env.mu.RLock()
	defer env.mu.RUnlock()
	_, ok := env.places[e.ID()]
	return ok
}

// Count returns the number of entities in the environment.
func (env *Environment) Count() int {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return len(env.places)
}

// Placement returns where e currently is.
func (env *Environment) Placement(e Entity) (Placement, bool) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	p, ok := env.places[e.ID()]
	if !ok {
		return Placement{}, false
	}
	return p.Placement, true
}

// Point returns the planar location of e.
func (env *Environment) Point(e Entity) (orb.Point, bool) {
	pl, ok := env.Placement(e)
	if !ok {
		return orb.Point{}, false
	}
	if pl.Edge == nil {
		n, err := env.graph.GetNode(pl.Node)
		if err != nil {
			return orb.Point{}, false
		}
		return n.Loc, true
	}
	return pl.Edge.PointAt(pl.Offset), true
}

// Move advances e along route by distance. An entity waiting at a node first
// enters the route's current edge. The target lane is the stop's desired lane
// within the modality's lane range; when that lane is blocked the entity
// stays in its lane, and when both are blocked the move is rejected.
func (env *Environment) Move(e Entity, route *graph.Route, distance float64) bool {
	cur := route.Current()
	if cur == nil || distance < 0 {
		return false
	}
	env.mu.Lock()
	defer env.mu.Unlock()

	p, known := env.places[e.ID()]
	if !known {
		p = &placement{entity: e}
		env.places[e.ID()] = p
	}
	// An entity placed by this call is taken out again when the move fails.
	reject := func() bool {
		if !known {
			env.removeFromLane(p)
			delete(env.places, e.ID())
		}
		return false
	}
	if p.Edge == nil {
		lane := laneFor(cur, e.Modality())
		if collides(e) && !env.laneFree(cur.Edge, lane, route.Offset(), e) {
			return reject()
		}
		p.Node = ""
		p.Edge, p.Lane, p.Offset = cur.Edge, lane, route.Offset()
		env.addToLane(p)
	}

	target, offset := route.Peek(distance)
	if target == nil {
		return reject()
	}
	lane := laneFor(target, e.Modality())
	if collides(e) && !env.laneFree(target.Edge, lane, offset, e) {
		if target.Edge != p.Edge || lane == p.Lane || !env.laneFree(p.Edge, p.Lane, offset, e) {
			return reject()
		}
		lane = p.Lane
	}

	env.removeFromLane(p)
	route.Advance(distance)
	p.Edge, p.Lane, p.Offset = target.Edge, lane, offset
	env.addToLane(p)

	ahead := make(map[graph.NodeID]bool)
	for _, s := range route.Stops() {
		ahead[s.Edge.V] = true
	}
	env.claims.Retain(e.ID(), func(node graph.NodeID) bool { return ahead[node] })
	return true
}

func laneFor(s *graph.Stop, m graph.Modality) int {
	r, ok := s.Edge.LaneRange(m)
	if !ok {
		r = graph.LaneRange{First: 0, Last: s.Edge.Lanes - 1}
	}
	return lo.Clamp(s.DesiredLane, r.First, r.Last)
}

// laneFree reports whether e fits with its front at offset without
// overlapping another colliding entity. Callers hold the lock.
func (env *Environment) laneFree(edge *graph.Edge, lane int, offset float64, e Entity) bool {
	lanes := env.lanes[edge.ID]
	if lane >= len(lanes) {
		return true
	}
	rear := offset - e.Length()
	for _, q := range lanes[lane] {
		if q.entity.ID() == e.ID() || !collides(q.entity) {
			continue
		}
		qRear := q.Offset - q.entity.Length()
		if offset > qRear && rear < q.Offset {
			return false
		}
	}
	return true
}

func (env *Environment) addToLane(p *placement) {
	lanes := env.lanes[p.Edge.ID]
	if lanes == nil {
		lanes = make([][]*placement, p.Edge.Lanes)
		env.lanes[p.Edge.ID] = lanes
	}
	occ := lanes[p.Lane]
	i, _ := slices.BinarySearchFunc(occ, p.Offset, func(q *placement, off float64) int {
		switch {
		case q.Offset < off:
			return -1
		case q.Offset > off:
			return 1
		}
		return 0
	})
	lanes[p.Lane] = slices.Insert(occ, i, p)
}

func (env *Environment) removeFromLane(p *placement) {
	if p.Edge == nil {
		return
	}
	lanes := env.lanes[p.Edge.ID]
	if p.Lane >= len(lanes) {
		return
	}
	lanes[p.Lane] = slices.DeleteFunc(lanes[p.Lane], func(q *placement) bool { return q == p })
}

func (env *Environment) String() string {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return fmt.Sprintf("environment(%d entities)", len(env.places))
}
