package graph

import (
	"container/heap"
	"fmt"
	"math"
)

// EdgeFilter decides whether an edge may be used by a search. A nil filter
// accepts every edge.
type EdgeFilter func(*Edge) bool

// ModalityFilter accepts edges usable by m.
func ModalityFilter(m Modality) EdgeFilter {
	return func(e *Edge) bool { return e.Allows(m) }
}

// PathInfo holds the result of a shortest-path computation.
type PathInfo struct {
	Nodes  []NodeID // ordered node IDs from start to end
	Edges  []*Edge
	Length float64 // total path length in metres
}

type queueItem struct {
	node NodeID
	dist float64
}

type nodeQueue []queueItem

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any) { *q = append(*q, x.(queueItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// ShortestPath returns the shortest path from start to end over edges accepted
// by filter. Returns an error if no path exists.
func (g *Graph) ShortestPath(start, end NodeID, filter EdgeFilter) (PathInfo, error) {
	if _, ok := g.nodeMap[start]; !ok {
		return PathInfo{}, fmt.Errorf("start node %q not found", start)
	}
	if _, ok := g.nodeMap[end]; !ok {
		return PathInfo{}, fmt.Errorf("end node %q not found", end)
	}
	if start == end {
		return PathInfo{Nodes: []NodeID{start}}, nil
	}

	dist := map[NodeID]float64{start: 0}
	via := make(map[NodeID]*Edge)
	q := &nodeQueue{{node: start}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if cur.dist > dist[cur.node] {
			continue // stale entry
		}
		if cur.node == end {
			break
		}
		for _, e := range g.outgoing[cur.node] {
			if filter != nil && !filter(e) {
				continue
			}
			d := cur.dist + e.Length
			if known, ok := dist[e.V]; !ok || d < known {
				dist[e.V] = d
				via[e.V] = e
				heap.Push(q, queueItem{node: e.V, dist: d})
			}
		}
	}

	d, ok := dist[end]
	if !ok || math.IsInf(d, 1) {
		return PathInfo{}, fmt.Errorf("no path from %q to %q", start, end)
	}
	return g.reconstructPath(start, end, via, d), nil
}

func (g *Graph) reconstructPath(start, end NodeID, via map[NodeID]*Edge, length float64) PathInfo {
	var edges []*Edge
	for n := end; n != start; {
		e := via[n]
		edges = append(edges, e)
		n = e.U
	}
	p := PathInfo{Length: length, Nodes: []NodeID{start}}
	for i := len(edges) - 1; i >= 0; i-- {
		p.Edges = append(p.Edges, edges[i])
		p.Nodes = append(p.Nodes, edges[i].V)
	}
	return p
}
