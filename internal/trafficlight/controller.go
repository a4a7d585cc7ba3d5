// Package trafficlight implements signalised intersections: one Controller
// per physical light node mapping every (incoming, outgoing) edge pair onto a
// phase, advanced once per tick.
package trafficlight

import (
	"fmt"
	"sync"

	"github.com/cxd309/mms-engine/internal/graph"
)

// Phase is the signal shown for one movement through a light node.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseRed
	PhaseYellow
	PhaseGreen
)

func (p Phase) String() string {
	switch p {
	case PhaseRed:
		return "red"
	case PhaseYellow:
		return "yellow"
	case PhaseGreen:
		return "green"
	default:
		return "none"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseNone, PhaseRed, PhaseYellow, PhaseGreen} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// PhaseFromCode decodes the numeric codes used by recorded schedules
// (1 red, 2 yellow, 3 green).
func PhaseFromCode(code int) (Phase, error) {
	switch code {
	case 1:
		return PhaseRed, nil
	case 2:
		return PhaseYellow, nil
	case 3:
		return PhaseGreen, nil
	}
	return PhaseNone, fmt.Errorf("unknown phase code %d", code)
}

// Schedule durations in ticks.
const (
	GreenDuration  = 20
	YellowDuration = 3
)

type movement struct {
	from, to graph.EdgeID
}

// window is the position of one movement's green phase within the cycle.
type window struct {
	green, yellow, red int
}

// Controller owns the phases of every movement through one node.
type Controller struct {
	Node graph.NodeID

	mu      sync.RWMutex
	phases  map[movement]Phase
	windows map[movement]window
	cycle   int
	codes   []Phase // recorded schedule; overrides the generated one
}

// NewController generates the coordinated schedule for node: each incoming edge
// in turn receives GreenDuration ticks of green followed by YellowDuration of
// yellow for every non-reversing movement. U-turns are unsignalised.
func NewController(g *graph.Graph, node graph.NodeID) (*Controller, error) {
	if _, err := g.GetNode(node); err != nil {
		return nil, fmt.Errorf("traffic light: %w", err)
	}
	c := &Controller{
		Node:    node,
		phases:  make(map[movement]Phase),
		windows: make(map[movement]window),
	}

	greenStart := 0
	for _, in := range g.Incoming(node) {
		for _, out := range g.Outgoing(node) {
			m := movement{from: in.ID, to: out.ID}
			if graph.Turn(in, out) == graph.Down {
				c.phases[m] = PhaseNone
				continue
			}
			c.phases[m] = PhaseRed
			c.windows[m] = window{
				green:  greenStart,
				yellow: greenStart + GreenDuration,
				red:    greenStart + GreenDuration + YellowDuration,
			}
		}
		greenStart += GreenDuration + YellowDuration
	}
	// A single movement would otherwise never see red.
	if len(c.phases) < 2 {
		greenStart += greenStart
	}
	c.cycle = greenStart
	return c, nil
}

// NewRecordedController builds a controller that replays a recorded phase-code
// list for every signalised movement, indexed by tick modulo its length.
func NewRecordedController(g *graph.Graph, node graph.NodeID, codes []int) (*Controller, error) {
	c, err := NewController(g, node)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("traffic light %s: empty phase list", node)
	}
	c.codes = make([]Phase, len(codes))
	for i, code := range codes {
		p, err := PhaseFromCode(code)
		if err != nil {
			return nil, fmt.Errorf("traffic light %s: index %d: %w", node, i, err)
		}
		c.codes[i] = p
	}
	c.cycle = len(codes)
	return c, nil
}

// CycleLength returns the number of ticks after which the schedule repeats.
func (c *Controller) CycleLength() int { return c.cycle }

// Step advances every movement to the phase valid at tick.
func (c *Controller) Step(tick int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle <= 0 {
		return
	}
	pos := int(tick % int64(c.cycle))
	for m, cur := range c.phases {
		if cur == PhaseNone {
			continue
		}
		if c.codes != nil {
			c.phases[m] = c.codes[pos]
			continue
		}
		w := c.windows[m]
		switch {
		case pos >= w.green && pos < w.yellow:
			c.phases[m] = PhaseGreen
		case pos >= w.yellow && pos < w.red:
			c.phases[m] = PhaseYellow
		default:
			c.phases[m] = PhaseRed
		}
	}
}

// Phase returns the current phase of the movement from → to. Unknown
// movements are unsignalised.
func (c *Controller) Phase(from, to graph.EdgeID) Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phases[movement{from: from, to: to}]
}

// AccessEdge reports whether the movement from → to may currently be entered.
func (c *Controller) AccessEdge(from, to graph.EdgeID) bool {
	return c.Phase(from, to) != PhaseRed
}
