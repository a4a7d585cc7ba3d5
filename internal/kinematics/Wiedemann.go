package kinematics

import "math"

// WiedemannModelName is the JSON discriminator string for the Wiedemann model.
const WiedemannModelName = "wiedemann"

const (
	standstillDistance         = 0.2 // m
	negativeFollowingThreshold = -0.25
	positiveFollowingThreshold = 0.25
	oscillationSpeedDependency = 1.0
	maxDecelFactor             = -5.0
	pedalEfficiency            = 0.95
	maxAccelerationFactor      = 3.0
	gravity                    = 9.81
)

// Wiedemann implements Accelerator with the psycho-physical Wiedemann
// car-following model, tuned for bicycles. The free regime acceleration is
// derived from the rider's power output and the loaded mass.
//
// JSON discriminator: "model": "wiedemann"
type Wiedemann struct {
	MaxSpeed float64      `json:"v_max"`    // m/s
	Power    float64      `json:"power"`    // W
	Mass     float64      `json:"mass"`     // kg, rider + bicycle + load
	Gradient float64      `json:"gradient"` // percent
	Style    DrivingStyle `json:"-"`
}

// NewWiedemann returns a bicycle model with the usual rider parameters.
func NewWiedemann(maxSpeed float64, style DrivingStyle) Wiedemann {
	return Wiedemann{MaxSpeed: maxSpeed, Power: 75, Mass: 90, Style: style}
}

func (w Wiedemann) maxAcceleration(v, vmax float64) float64 {
	if w.Mass <= 0 || vmax <= 0 {
		return 0
	}
	speed := math.Abs(v)
	power := w.Power * pedalEfficiency
	eps := power / (w.Mass * maxAccelerationFactor)
	a := power / w.Mass * (1/(speed+eps) - speed*speed/math.Pow(vmax, 3))
	if w.Gradient > 0 {
		a -= gravity * w.Gradient / 100
	}
	return a
}

func (w Wiedemann) SpeedDelta(currentSpeed, speedLimit, gap, obstacleSpeed, obstacleAccel float64) float64 {
	if gap <= 0 {
		return -currentSpeed
	}
	v := currentSpeed
	st := w.Style
	if st.Headway == 0 {
		st = NormalStyle()
	}

	dx := gap + standstillDistance
	dv := obstacleSpeed - v

	// Thresholds: close following distance, deliberate following distance and
	// the speed-difference bands around them.
	sdxc := standstillDistance
	if obstacleSpeed > 0 {
		sdxc += st.Headway * v
	}
	sdxo := st.FollowingVariation + sdxc
	sdv := oscillationSpeedDependency * dx * dx
	sdvo := sdv
	if v > positiveFollowingThreshold {
		sdvo += positiveFollowingThreshold
	}
	sdvc := 0.0
	if obstacleSpeed > 0 {
		sdvc = negativeFollowingThreshold - sdv
	}

	var accel float64
	switch {
	case dx <= sdxc && dv <= sdvo:
		// Emergency regime.
		if v > 0 && dv < 0 {
			if dx > standstillDistance {
				accel = math.Min(obstacleAccel+dv*dv/(standstillDistance-dx), 0)
			} else {
				accel = math.Min(obstacleAccel+0.5*(dv-sdvo), 0)
			}
			if accel > -st.OscillationAcceleration {
				accel = -st.OscillationAcceleration
			} else {
				accel = math.Max(accel, maxDecelFactor+0.5*math.Sqrt(v))
			}
			if v+accel < obstacleSpeed {
				accel = dv - st.DriverRand
			}
		}
	case dv < sdvc && dx < sdxo+st.EnteringFollowingThreshold*(dv-negativeFollowingThreshold):
		// Approaching a slower obstacle.
		accel = 0.5 * dv * dv / (sdxc - dx - 0.1)
		accel = math.Max(accel, maxDecelFactor+math.Sqrt(v))
	case dv < sdvo && dx < sdxo:
		// Following: oscillate around the leader's speed.
		accel = math.Min(dv, -st.OscillationAcceleration)
		if v+accel < 0 {
			accel = -v
		}
	case dx > sdxc:
		// Free regime.
		maxA := w.maxAcceleration(v, effectiveLimit(speedLimit, w.MaxSpeed))
		if dx < sdxo {
			accel = math.Min(dv*dv/(sdxo-dx), maxA)
		} else {
			accel = maxA
		}
	}
	return Bound(v, accel, speedLimit, w.MaxSpeed, gap, obstacleSpeed)
}
