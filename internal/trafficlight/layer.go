package trafficlight

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/graph"
)

// maxSnapDistance is how far a light position may lie from its node before a
// warning is logged.
const maxSnapDistance = 10.0 // metres

// LightSpec places one traffic light, either on a node or at a location that
// is snapped onto the nearest road node. Phases optionally replays a recorded
// phase-code list.
type LightSpec struct {
	Node   graph.NodeID `json:"node,omitempty"`
	Loc    *orb.Point   `json:"loc,omitempty"`
	Phases []int        `json:"phases,omitempty"`
}

// Layer holds every controller of a run, keyed by node.
type Layer struct {
	controllers map[graph.NodeID]*Controller
}

// NewLayer builds a controller for each spec.
func NewLayer(g *graph.Graph, specs []LightSpec, log logrus.FieldLogger) (*Layer, error) {
	l := &Layer{controllers: make(map[graph.NodeID]*Controller, len(specs))}
	for i, s := range specs {
		node := s.Node
		if node == "" {
			if s.Loc == nil {
				return nil, fmt.Errorf("traffic light %d: neither node nor location given", i)
			}
			n, err := g.NearestNode(*s.Loc, graph.ModalityRoad)
			if err != nil {
				return nil, fmt.Errorf("traffic light %d: %w", i, err)
			}
			if d := planar.Distance(n.Loc, *s.Loc); d > maxSnapDistance {
				log.WithFields(logrus.Fields{"node": n.ID, "distance": d}).
					Warn("traffic light is far from its node")
			}
			node = n.ID
		}

		var (
			c   *Controller
			err error
		)
		if len(s.Phases) > 0 {
			c, err = NewRecordedController(g, node, s.Phases)
		} else {
			c, err = NewController(g, node)
		}
		if err != nil {
			return nil, err
		}
		if len(g.Incoming(node)) == 0 {
			log.WithField("node", node).Warn("traffic light node has no incoming edges")
		}
		l.controllers[node] = c
	}
	log.WithField("count", len(l.controllers)).Info("traffic light controllers created")
	return l, nil
}

// Step advances every controller to tick.
func (l *Layer) Step(tick int64) {
	if l == nil {
		return
	}
	for _, c := range l.controllers {
		c.Step(tick)
	}
}

// Controller returns the controller guarding node, if any.
func (l *Layer) Controller(node graph.NodeID) (*Controller, bool) {
	if l == nil {
		return nil, false
	}
	c, ok := l.controllers[node]
	return c, ok
}

// Phase returns the phase of from → to at node and whether node is signalised.
func (l *Layer) Phase(node graph.NodeID, from, to graph.EdgeID) (Phase, bool) {
	c, ok := l.Controller(node)
	if !ok {
		return PhaseNone, false
	}
	return c.Phase(from, to), true
}
