// Package kinematics defines the Accelerator contract for longitudinal vehicle
// motion, along with the built-in car, bicycle, rail and pedestrian models.
//
// One simulation tick is one second, so speeds double as distances per tick.
// Adding a new model only requires implementing Accelerator; the steering
// orchestrator never needs to change.
package kinematics

import (
	"math"

	"github.com/samber/lo"
)

const (
	// Unconstrained is the sentinel speed delta meaning "no constraint applies".
	// Constraints are folded with min, so any real delta wins over it.
	Unconstrained = 1000.0

	// FreeDrivingClearance is the probe gap used for free-flow driving.
	FreeDrivingClearance = 1000.0

	// EmergencyDeceleration bounds the physically possible braking, m/s².
	EmergencyDeceleration = 7.5
)

// Accelerator maps the longitudinal situation of a vehicle onto a signed speed
// change for the next tick. All distances are in metres, speeds in m/s.
type Accelerator interface {
	// SpeedDelta returns the change to apply to currentSpeed given the speed
	// limit, the gap to the obstacle ahead and the obstacle's speed and
	// acceleration. A stationary phantom (obstacleSpeed 0) models stop lines.
	SpeedDelta(currentSpeed, speedLimit, gap, obstacleSpeed, obstacleAccel float64) float64
}

// BrakingDistance is the speed-quadratic distance of the emergency braking
// profile: (km/h / 10)² · 2.
func BrakingDistance(v float64) float64 {
	return math.Pow(v*3.6/10, 2) * 2
}

// StoppingDistance is the shortest distance needed to stop from v under
// emergency deceleration.
func StoppingDistance(v float64) float64 {
	return v * v / (2 * EmergencyDeceleration)
}

// Bound clamps a raw delta so that the resulting speed stays within
// [0, min(speedLimit, maxSpeed)]. A stationary obstacle closer than the
// stopping distance forces a full stop, and a stationary obstacle is never
// passed within one tick.
func Bound(currentSpeed, delta, speedLimit, maxSpeed, gap, obstacleSpeed float64) float64 {
	if gap <= 0 {
		return -currentSpeed
	}
	stationary := obstacleSpeed <= 0
	if stationary && gap <= StoppingDistance(currentSpeed) {
		return -currentSpeed
	}
	ceiling := math.Max(0, effectiveLimit(speedLimit, maxSpeed))
	next := lo.Clamp(currentSpeed+delta, 0, ceiling)
	if stationary {
		next = math.Min(next, gap)
	}
	return next - currentSpeed
}

func effectiveLimit(speedLimit, maxSpeed float64) float64 {
	if maxSpeed <= 0 {
		return speedLimit
	}
	return math.Min(speedLimit, maxSpeed)
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
