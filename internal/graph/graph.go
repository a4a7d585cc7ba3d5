// Package graph provides the lane-aware road/path network used by the
// mobility simulation, along with routes over it and shortest-path search.
package graph

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
)

// NodeID, EdgeID are string aliases used as identifiers.
type (
	NodeID = string
	EdgeID = string
)

// Modality classifies which kind of traffic may use a lane.
type Modality string

const (
	ModalityWalking Modality = "walking"
	ModalityCycling Modality = "cycling"
	ModalityRoad    Modality = "road"
	ModalityRail    Modality = "rail"
	ModalityShip    Modality = "ship"
)

// Node is a point in the network graph. Loc is planar, in metres.
type Node struct {
	ID  NodeID    `json:"node_id"`
	Loc orb.Point `json:"loc"`
}

// LaneRange is an inclusive range of lane indices. Lane 0 is the leftmost lane.
type LaneRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Contains reports whether lane lies within the range.
func (r LaneRange) Contains(lane int) bool { return lane >= r.First && lane <= r.Last }

// Width returns the number of lanes in the range.
func (r LaneRange) Width() int { return r.Last - r.First + 1 }

// Edge is a directed connection between two nodes with a length in metres.
// SpeedLimit is optional: if nil the edge imposes no limit and the vehicle's
// own max speed applies.
type Edge struct {
	ID         EdgeID                 `json:"edge_id"`
	U          NodeID                 `json:"u"`
	V          NodeID                 `json:"v"`
	Length     float64                `json:"length,omitempty"`      // metres; derived from geometry when zero
	SpeedLimit *float64               `json:"speed_limit,omitempty"` // m/s; nil = no restriction
	Lanes      int                    `json:"lanes,omitempty"`       // defaults to 1
	Modalities map[Modality]LaneRange `json:"modalities,omitempty"`  // nil = every modality on every lane
	Geometry   orb.LineString         `json:"geometry,omitempty"`    // defaults to the straight line U to V
}

// LaneRange returns the lanes usable by modality m and whether m may use the edge at all.
func (e *Edge) LaneRange(m Modality) (LaneRange, bool) {
	if e.Modalities == nil {
		return LaneRange{First: 0, Last: e.Lanes - 1}, true
	}
	r, ok := e.Modalities[m]
	return r, ok
}

// Allows reports whether modality m may use the edge.
func (e *Edge) Allows(m Modality) bool {
	_, ok := e.LaneRange(m)
	return ok
}

// Limit returns the edge speed limit, or fallback when the edge has none.
func (e *Edge) Limit(fallback float64) float64 {
	if e.SpeedLimit == nil {
		return fallback
	}
	return *e.SpeedLimit
}

// PointAt interpolates the planar location offset metres along the edge.
// Offsets are scaled onto the geometry when Length differs from it.
func (e *Edge) PointAt(offset float64) orb.Point {
	if len(e.Geometry) == 0 {
		return orb.Point{}
	}
	total := planar.Length(e.Geometry)
	if total <= 0 || offset <= 0 {
		return e.Geometry[0]
	}
	d := offset * total / e.Length
	for i := 1; i < len(e.Geometry); i++ {
		a, b := e.Geometry[i-1], e.Geometry[i]
		seg := planar.Distance(a, b)
		if d <= seg && seg > 0 {
			f := d / seg
			return orb.Point{a[0] + f*(b[0]-a[0]), a[1] + f*(b[1]-a[1])}
		}
		d -= seg
	}
	return e.Geometry[len(e.Geometry)-1]
}

// GraphData is the serialisable input representation of a network graph.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Graph is a directed weighted multi-lane graph.
type Graph struct {
	nodes    []Node
	edges    []*Edge
	nodeMap  map[NodeID]Node
	edgeMap  map[EdgeID]*Edge
	outgoing map[NodeID][]*Edge
	incoming map[NodeID][]*Edge
}

// NewGraph builds a Graph from GraphData, returning an error if any node or edge
// references are invalid.
func NewGraph(data GraphData) (*Graph, error) {
	g := &Graph{
		nodeMap:  make(map[NodeID]Node),
		edgeMap:  make(map[EdgeID]*Edge),
		outgoing: make(map[NodeID][]*Edge),
		incoming: make(map[NodeID][]*Edge),
	}
	for _, n := range data.Nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range data.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddNode adds a node to the graph. Returns an error if the node ID already exists.
func (g *Graph) AddNode(n Node) error {
	if _, exists := g.nodeMap[n.ID]; exists {
		return fmt.Errorf("node %q already exists", n.ID)
	}
	g.nodes = append(g.nodes, n)
	g.nodeMap[n.ID] = n
	return nil
}

// AddEdge adds a directed edge to the graph. Returns an error if the edge ID already
// exists or either endpoint node is missing. Missing length, lane count and
// geometry are derived from the endpoints.
func (g *Graph) AddEdge(e Edge) error {
	if _, exists := g.edgeMap[e.ID]; exists {
		return fmt.Errorf("edge %q already exists", e.ID)
	}
	u, ok := g.nodeMap[e.U]
	if !ok {
		return fmt.Errorf("edge %q: source node %q not found", e.ID, e.U)
	}
	v, ok := g.nodeMap[e.V]
	if !ok {
		return fmt.Errorf("edge %q: target node %q not found", e.ID, e.V)
	}
	if len(e.Geometry) < 2 {
		e.Geometry = orb.LineString{u.Loc, v.Loc}
	}
	if e.Length <= 0 {
		e.Length = planar.Length(e.Geometry)
	}
	if e.Length <= 0 {
		return fmt.Errorf("edge %q: zero length", e.ID)
	}
	if e.Lanes <= 0 {
		e.Lanes = 1
	}
	for m, r := range e.Modalities {
		if r.First < 0 || r.Last >= e.Lanes || r.First > r.Last {
			return fmt.Errorf("edge %q: invalid lane range %v for %s", e.ID, r, m)
		}
	}

	edge := &e
	g.edges = append(g.edges, edge)
	g.edgeMap[e.ID] = edge
	g.outgoing[e.U] = append(g.outgoing[e.U], edge)
	g.incoming[e.V] = append(g.incoming[e.V], edge)
	return nil
}

// GetNode looks up a node by its ID.
func (g *Graph) GetNode(id NodeID) (Node, error) {
	n, ok := g.nodeMap[id]
	if !ok {
		return Node{}, fmt.Errorf("node %q not found", id)
	}
	return n, nil
}

// GetEdgeByID looks up an edge by its ID.
func (g *Graph) GetEdgeByID(id EdgeID) (*Edge, error) {
	e, ok := g.edgeMap[id]
	if !ok {
		return nil, fmt.Errorf("edge %q not found", id)
	}
	return e, nil
}

// GetEdge returns the directed edge from u to v.
func (g *Graph) GetEdge(u, v NodeID) (*Edge, error) {
	for _, e := range g.outgoing[u] {
		if e.V == v {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no edge from %q to %q", u, v)
}

// Outgoing returns the edges leaving node id.
func (g *Graph) Outgoing(id NodeID) []*Edge { return g.outgoing[id] }

// Incoming returns the edges entering node id.
func (g *Graph) Incoming(id NodeID) []*Edge { return g.incoming[id] }

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []*Edge { return g.edges }

// NearestNode returns the node closest to p that has at least one incident edge
// usable by modality m.
func (g *Graph) NearestNode(p orb.Point, m Modality) (Node, error) {
	usable := lo.Filter(g.nodes, func(n Node, _ int) bool {
		return lo.SomeBy(g.outgoing[n.ID], func(e *Edge) bool { return e.Allows(m) }) ||
			lo.SomeBy(g.incoming[n.ID], func(e *Edge) bool { return e.Allows(m) })
	})
	if len(usable) == 0 {
		return Node{}, fmt.Errorf("no node usable by %s", m)
	}
	return lo.MinBy(usable, func(a, b Node) bool {
		return planar.DistanceSquared(p, a.Loc) < planar.DistanceSquared(p, b.Loc)
	}), nil
}
