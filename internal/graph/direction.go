package graph

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// DirectionType classifies the bearing change between two consecutive edges.
type DirectionType int

const (
	DirectionUnknown DirectionType = iota
	Up                             // straight on
	UpLeft                         // slight left
	UpRight                        // slight right
	Left
	Right
	DownLeft  // hard left
	DownRight // hard right
	Down      // U-turn
)

var directionNames = map[DirectionType]string{
	DirectionUnknown: "unknown",
	Up:               "up",
	UpLeft:           "up-left",
	UpRight:          "up-right",
	Left:             "left",
	Right:            "right",
	DownLeft:         "down-left",
	DownRight:        "down-right",
	Down:             "down",
}

func (d DirectionType) String() string { return directionNames[d] }

// ParseDirection looks a direction up by its name.
func ParseDirection(s string) (DirectionType, error) {
	d, ok := lo.FindKey(directionNames, s)
	if !ok {
		return DirectionUnknown, fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// IsLeftish reports whether d bends to the left or reverses.
func (d DirectionType) IsLeftish() bool {
	return d == UpLeft || d == Left || d == DownLeft || d == Down
}

// IsRightish reports whether d bends to the right.
func (d DirectionType) IsRightish() bool {
	return d == UpRight || d == Right || d == DownRight
}

// Bearing returns the compass bearing of the segment a→b in degrees [0, 360),
// 0 pointing along +Y and increasing clockwise.
func Bearing(a, b orb.Point) float64 {
	deg := math.Atan2(b[0]-a[0], b[1]-a[1]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// EntryBearing is the bearing at which traffic leaves e's start node.
func (e *Edge) EntryBearing() float64 {
	return Bearing(e.Geometry[0], e.Geometry[1])
}

// ExitBearing is the bearing at which traffic arrives at e's end node.
func (e *Edge) ExitBearing() float64 {
	n := len(e.Geometry)
	return Bearing(e.Geometry[n-2], e.Geometry[n-1])
}

// RelativeAngle returns to−from normalised into (−180, 180]; positive turns right.
func RelativeAngle(from, to float64) float64 {
	a := math.Mod(to-from, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// ClassifyAngle maps a relative angle onto a DirectionType.
func ClassifyAngle(a float64) DirectionType {
	abs := math.Abs(a)
	switch {
	case abs <= 22.5:
		return Up
	case abs <= 67.5:
		if a > 0 {
			return UpRight
		}
		return UpLeft
	case abs <= 112.5:
		if a > 0 {
			return Right
		}
		return Left
	case abs <= 157.5:
		if a > 0 {
			return DownRight
		}
		return DownLeft
	default:
		return Down
	}
}

// Turn classifies the movement from edge from onto edge to. A returning edge
// (to ends where from starts) is always a U-turn.
func Turn(from, to *Edge) DirectionType {
	if from == nil || to == nil {
		return DirectionUnknown
	}
	if from.U == to.V && from.V == to.U {
		return Down
	}
	return ClassifyAngle(RelativeAngle(from.ExitBearing(), to.EntryBearing()))
}
