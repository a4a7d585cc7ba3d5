// Package intersection decides who may cross an unsignalised node first and
// how signalised approaches react to the light phase.
package intersection

import (
	"math"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/trafficlight"
)

// Traffic codes.
const (
	CodeGerman       = "german"
	CodeSouthAfrican = "south-african"
)

const (
	// RightBeforeLeftWindow is how close another claimant must be to its
	// conflict point to take part in right-before-left arbitration.
	RightBeforeLeftWindow = 10.0
	// FirstInFirstOutWindow is the same for first-come first-served.
	FirstInFirstOutWindow = 20.0
)

// Approach describes one vehicle nearing a node during the current tick.
type Approach struct {
	EntityID   string
	Node       graph.NodeID
	Incoming   *graph.Edge
	Outgoing   *graph.Edge
	Direction  graph.DirectionType
	Distance   float64 // to the conflict point
	Velocity   float64
	SpeedLimit float64
	Signalized bool
	Phase      trafficlight.Phase
	Privileged bool
}

// ClaimSource provides the current claims on a node.
type ClaimSource interface {
	Claims(node graph.NodeID) []environment.Claim
}

// Policy returns the speed delta an approaching vehicle must respect, or
// kinematics.Unconstrained when it has priority.
type Policy interface {
	Evaluate(a Approach) float64
}

// New returns the policy implementing the traffic code.
func New(code string, claims ClaimSource, accel kinematics.Accelerator) (Policy, error) {
	switch code {
	case CodeGerman:
		return &RightBeforeLeft{claims: claims, accel: accel}, nil
	case CodeSouthAfrican:
		return &FirstInFirstOut{claims: claims, accel: accel}, nil
	}
	return nil, fault.Configuration("intersection.New", "unknown traffic code "+code)
}

func yield(accel kinematics.Accelerator, a Approach) float64 {
	return accel.SpeedDelta(a.Velocity, a.SpeedLimit, a.Distance, 0, 0)
}

// contenders returns the claims on a's node within window that arrive from
// another incoming edge, together with a's own claim. A missing own claim
// is synthesised as the latest arrival.
func contenders(claims ClaimSource, a Approach, window float64) (mine environment.Claim, others []environment.Claim) {
	mine = environment.Claim{
		EntityID:  a.EntityID,
		Node:      a.Node,
		Incoming:  a.Incoming,
		Outgoing:  a.Outgoing,
		Direction: a.Direction,
		Distance:  a.Distance,
		Tick:      math.MaxInt64,
	}
	for _, c := range claims.Claims(a.Node) {
		if c.EntityID == a.EntityID {
			mine.Tick = c.Tick
			continue
		}
		if c.Distance > window || c.Incoming == nil || c.Incoming == a.Incoming {
			continue
		}
		others = append(others, c)
	}
	return mine, others
}

func earlier(a, b environment.Claim) bool {
	if a.Tick != b.Tick {
		return a.Tick < b.Tick
	}
	return a.EntityID < b.EntityID
}

// FirstInFirstOut gives way to whoever claimed the node first. Claims made
// in the same tick are ordered by entity ID.
type FirstInFirstOut struct {
	claims ClaimSource
	accel  kinematics.Accelerator
}

func (p *FirstInFirstOut) Evaluate(a Approach) float64 {
	mine, others := contenders(p.claims, a, FirstInFirstOutWindow)
	for _, c := range others {
		if earlier(c, mine) {
			return yield(p.accel, a)
		}
	}
	return kinematics.Unconstrained
}
