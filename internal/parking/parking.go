// Package parking tracks the spaces private cars are parked in.
package parking

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// DefaultCapacity is the number of cars a space holds when its feature does
// not say otherwise.
const DefaultCapacity = 1

// Space is a parking lot with a fixed capacity.
type Space struct {
	ID       string
	Loc      orb.Point
	Node     graph.NodeID
	Capacity int

	mu       sync.Mutex
	occupied map[string]*vehicle.Vehicle
}

// NewSpace creates an empty space.
func NewSpace(id string, loc orb.Point, node graph.NodeID, capacity int) *Space {
	return &Space{ID: id, Loc: loc, Node: node, Capacity: capacity, occupied: make(map[string]*vehicle.Vehicle)}
}

func (s *Space) DockID() string { return s.ID }

// Free returns the number of vacant spots.
func (s *Space) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Capacity - len(s.occupied)
}

// HasCapacity reports whether another car fits.
func (s *Space) HasCapacity() bool { return s.Free() > 0 }

// Enter parks v. It fails when the space is full or v is already parked.
func (s *Space) Enter(v *vehicle.Vehicle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.occupied[v.ID()]; ok || len(s.occupied) >= s.Capacity {
		return false
	}
	s.occupied[v.ID()] = v
	v.SetDock(s)
	return true
}

// Leave takes v out of the space.
func (s *Space) Leave(v *vehicle.Vehicle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.occupied[v.ID()]; !ok {
		return false
	}
	delete(s.occupied, v.ID())
	v.SetDock(nil)
	return true
}

// Layer holds every parking space of a run.
type Layer struct {
	spaces []*Space
}

// NewLayer groups spaces into a layer.
func NewLayer(spaces ...*Space) *Layer { return &Layer{spaces: spaces} }

// LoadSpaces reads a GeoJSON FeatureCollection of parking points with an
// optional "capacity" property, snapping each onto the nearest road node.
func LoadSpaces(data []byte, g *graph.Graph) (*Layer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parking spaces: %w", err)
	}
	l := &Layer{}
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("parking space %d: geometry is not a point", i)
		}
		node, err := g.NearestNode(p, graph.ModalityRoad)
		if err != nil {
			return nil, fmt.Errorf("parking space %d: %w", i, err)
		}
		l.spaces = append(l.spaces, NewSpace(uuid.NewString(), p, node.ID, f.Properties.MustInt("capacity", DefaultCapacity)))
	}
	return l, nil
}

// Spaces returns every space.
func (l *Layer) Spaces() []*Space { return l.spaces }

// Add appends a space to the layer.
func (l *Layer) Add(s *Space) { l.spaces = append(l.spaces, s) }

// Nearest returns the space closest to p accepted by pred.
func (l *Layer) Nearest(p orb.Point, pred func(*Space) bool) (*Space, bool) {
	candidates := l.spaces
	if pred != nil {
		candidates = lo.Filter(candidates, func(s *Space, _ int) bool { return pred(s) })
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return lo.MinBy(candidates, func(a, b *Space) bool {
		return planar.DistanceSquared(p, a.Loc) < planar.DistanceSquared(p, b.Loc)
	}), true
}

// WithCapacity accepts spaces with a vacant spot.
func WithCapacity(s *Space) bool { return s.HasCapacity() }
