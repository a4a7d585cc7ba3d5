package kinematics

import "math"

// ConstantModelName is the JSON discriminator string for the Constant model.
const ConstantModelName = "constant"

// ConstantAcceleration implements Accelerator using fixed traction and
// braking rates. Trains and ferries use it.
//
// JSON discriminator: "model": "constant"
type ConstantAcceleration struct {
	Traction float64 `json:"a_acc"` // m/s²
	Braking  float64 `json:"a_dcc"` // m/s², positive
	MaxSpeed float64 `json:"v_max"` // m/s
}

// stoppingGap is the distance needed to brake from v down to target plus one
// tick of travel at v. Without braking the vehicle can never stop.
func (c ConstantAcceleration) stoppingGap(v, target float64) float64 {
	if c.Braking <= 0 {
		return math.Inf(1)
	}
	if v <= target {
		return v
	}
	return (v*v-target*target)/(2*c.Braking) + v
}

// SpeedDelta accelerates at Traction toward the limit until the gap to the
// obstacle shrinks to the stopping gap toward its speed, then brakes.
func (c ConstantAcceleration) SpeedDelta(currentSpeed, speedLimit, gap, obstacleSpeed, _ float64) float64 {
	if gap <= 0 {
		return -currentSpeed
	}
	v := currentSpeed
	target := effectiveLimit(speedLimit, c.MaxSpeed)
	var delta float64
	switch {
	case gap <= c.stoppingGap(v, obstacleSpeed):
		delta = math.Max(-c.Braking, math.Min(0, obstacleSpeed-v))
	case v > target:
		delta = math.Max(-c.Braking, target-v)
	default:
		delta = math.Min(c.Traction, target-v)
	}
	return Bound(v, delta, speedLimit, c.MaxSpeed, gap, obstacleSpeed)
}
