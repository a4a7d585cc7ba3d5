package intersection

import (
	"math"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
)

type side int

const (
	sideSame side = iota
	sideRight
	sideLeft
	sideOpposite
)

// sideOf tells from which side other arrives, seen from me's heading.
func sideOf(me, other environment.Claim) side {
	rel := graph.RelativeAngle(me.Incoming.ExitBearing(), other.Incoming.ExitBearing())
	switch abs := math.Abs(rel); {
	case abs <= 45:
		return sideSame
	case abs >= 135:
		return sideOpposite
	case rel < 0:
		return sideRight
	default:
		return sideLeft
	}
}

// rank orders movements for opposing traffic: straight before right turns
// before left turns.
func rank(d graph.DirectionType) int {
	switch {
	case d.IsRightish():
		return 1
	case d.IsLeftish():
		return 2
	}
	return 0
}

// RightBeforeLeft gives way to traffic from the right. Opposing vehicles
// are ordered by movement and then by arrival; when every claimant has
// someone on its right, arrival order decides.
type RightBeforeLeft struct {
	claims ClaimSource
	accel  kinematics.Accelerator
}

func (p *RightBeforeLeft) Evaluate(a Approach) float64 {
	if a.Incoming == nil {
		return kinematics.Unconstrained
	}
	mine, others := contenders(p.claims, a, RightBeforeLeftWindow)
	if len(others) == 0 {
		return kinematics.Unconstrained
	}
	if deadlocked(append([]environment.Claim{mine}, others...)) {
		for _, c := range others {
			if earlier(c, mine) {
				return yield(p.accel, a)
			}
		}
		return kinematics.Unconstrained
	}
	for _, c := range others {
		switch sideOf(mine, c) {
		case sideRight:
			return yield(p.accel, a)
		case sideOpposite:
			rm, rc := rank(mine.Direction), rank(c.Direction)
			if rc < rm || (rc == rm && earlier(c, mine)) {
				return yield(p.accel, a)
			}
		}
	}
	return kinematics.Unconstrained
}

func deadlocked(all []environment.Claim) bool {
	for i, x := range all {
		blocked := false
		for j, y := range all {
			if i != j && sideOf(x, y) == sideRight {
				blocked = true
				break
			}
		}
		if !blocked {
			return false
		}
	}
	return true
}
