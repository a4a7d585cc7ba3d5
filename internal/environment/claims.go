package environment

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cxd309/mms-engine/internal/graph"
)

// Claim is an entity's announced intention to cross a node.
type Claim struct {
	EntityID  string
	Node      graph.NodeID
	Incoming  *graph.Edge
	Outgoing  *graph.Edge // nil when the entity's route ends at Node
	Direction graph.DirectionType
	Distance  float64 // distance to the node when the claim was last refreshed
	Tick      int64   // tick of the first claim; kept across refreshes
}

// ClaimRegistry tracks intersection claims per node.
type ClaimRegistry struct {
	mu     sync.Mutex
	byNode map[graph.NodeID]map[string]Claim
}

// NewClaimRegistry returns an empty registry.
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{byNode: make(map[graph.NodeID]map[string]Claim)}
}

// Claim registers or refreshes c. A refresh keeps the tick of the original
// claim so arrival order stays stable.
func (r *ClaimRegistry) Claim(c Claim) Claim {
	r.mu.Lock()
	defer r.mu.Unlock()
	claims, ok := r.byNode[c.Node]
	if !ok {
		claims = make(map[string]Claim)
		r.byNode[c.Node] = claims
	}
	if prev, ok := claims[c.EntityID]; ok {
		c.Tick = prev.Tick
	}
	claims[c.EntityID] = c
	return c
}

// Claims returns the claims on node ordered by (Tick, EntityID).
func (r *ClaimRegistry) Claims(node graph.NodeID) []Claim {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Claim, 0, len(r.byNode[node]))
	for _, c := range r.byNode[node] {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Claim) int {
		if c := cmp.Compare(a.Tick, b.Tick); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return out
}

// Release drops the claim of id on node.
func (r *ClaimRegistry) Release(node graph.NodeID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.release(node, id)
}

func (r *ClaimRegistry) release(node graph.NodeID, id string) {
	claims, ok := r.byNode[node]
	if !ok {
		return
	}
	delete(claims, id)
	if len(claims) == 0 {
		delete(r.byNode, node)
	}
}

// ReleaseAll drops every claim held by id.
func (r *ClaimRegistry) ReleaseAll(id string) {
	r.Retain(id, func(graph.NodeID) bool { return false })
}

// Retain keeps only the claims of id on nodes accepted by keep.
func (r *ClaimRegistry) Retain(id string, keep func(graph.NodeID) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for node, claims := range r.byNode {
		if _, ok := claims[id]; ok && !keep(node) {
			r.release(node, id)
		}
	}
}

// Claims exposes the environment's claim registry.
func (env *Environment) Claims() *ClaimRegistry { return env.claims }
