package kinematics

import (
	"fmt"
	"math/rand/v2"
)

// DriverType is the personal driving style class of a rider or driver.
type DriverType string

const (
	Aggressive DriverType = "aggressive"
	Normal     DriverType = "normal"
	Defensive  DriverType = "defensive"
)

// Base values of the normal style.
const (
	baseHeadway            = 1.5
	baseFollowingVariation = 2.0
	baseEnteringFollowing  = -20.0
	baseOscillationAccel   = 0.20
	driverTypeCount        = 3
)

// DrivingStyle is the per-agent parameterisation of the Wiedemann thresholds.
// It is sampled once and reused for every tick.
type DrivingStyle struct {
	Type                       DriverType
	DriverRand                 float64 // position of the agent within its class, [0,1]
	Headway                    float64 // s
	FollowingVariation         float64 // m
	EnteringFollowingThreshold float64
	OscillationAcceleration    float64 // m/s²
}

// ParseDriverType validates a configured driver type; empty means normal.
func ParseDriverType(s string) (DriverType, error) {
	switch DriverType(s) {
	case "":
		return Normal, nil
	case Aggressive, Normal, Defensive:
		return DriverType(s), nil
	}
	return "", fmt.Errorf("unknown driver type %q", s)
}

// NormalStyle returns the normal style at the centre of its class.
func NormalStyle() DrivingStyle {
	return DrivingStyle{
		Type:                       Normal,
		DriverRand:                 0.5,
		Headway:                    baseHeadway,
		FollowingVariation:         baseFollowingVariation,
		EnteringFollowingThreshold: baseEnteringFollowing,
		OscillationAcceleration:    baseOscillationAccel,
	}
}

// SampleStyle draws the style parameters for driver type t from rng.
func SampleStyle(t DriverType, rng *rand.Rand) DrivingStyle {
	part := 1.0 / driverTypeCount
	between := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	switch t {
	case Aggressive:
		return DrivingStyle{
			Type:                       t,
			DriverRand:                 between(2*part, 1),
			Headway:                    between(baseHeadway/2, baseHeadway),
			FollowingVariation:         between(baseFollowingVariation/2, baseFollowingVariation),
			EnteringFollowingThreshold: between(baseEnteringFollowing, baseEnteringFollowing/2),
			OscillationAcceleration:    between(baseOscillationAccel, baseOscillationAccel*1.5),
		}
	case Defensive:
		return DrivingStyle{
			Type:                       t,
			DriverRand:                 between(0, part),
			Headway:                    between(baseHeadway, baseHeadway*1.5),
			FollowingVariation:         between(baseFollowingVariation, baseFollowingVariation*1.5),
			EnteringFollowingThreshold: between(baseEnteringFollowing*1.5, baseEnteringFollowing),
			OscillationAcceleration:    between(baseOscillationAccel/2, baseOscillationAccel),
		}
	default:
		return DrivingStyle{
			Type:                       Normal,
			DriverRand:                 between(part, 2*part),
			Headway:                    baseHeadway,
			FollowingVariation:         baseFollowingVariation,
			EnteringFollowingThreshold: baseEnteringFollowing,
			OscillationAcceleration:    baseOscillationAccel,
		}
	}
}

// WantsToOvertake draws whether a driver of this style is willing to overtake.
func (s DrivingStyle) WantsToOvertake(rng *rand.Rand) bool {
	lo, hi := 0.0, 100.0
	switch s.Type {
	case Aggressive:
		lo = 40
	case Defensive:
		hi = 60
	}
	return lo+rng.Float64()*(hi-lo) >= 50
}
