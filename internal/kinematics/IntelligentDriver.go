package kinematics

import "math"

// IntelligentDriverModelName is the JSON discriminator string for the IDM.
const IntelligentDriverModelName = "idm"

// IntelligentDriver implements Accelerator with the Intelligent Driver Model.
//
// JSON discriminator: "model": "idm"
type IntelligentDriver struct {
	MaxSpeed     float64 `json:"v_max"`    // m/s
	Acceleration float64 `json:"a_acc"`    // maximum acceleration, m/s²
	Deceleration float64 `json:"b_comf"`   // comfortable deceleration, m/s² (positive)
	Headway      float64 `json:"headway"`  // safe time headway, s
	JamGap       float64 `json:"jam_gap"`  // minimum gap in congestion, m
	Exponent     float64 `json:"exponent"` // free-road acceleration exponent
}

// NewIntelligentDriver returns the urban IDM parameter set with the given top speed.
func NewIntelligentDriver(maxSpeed float64) IntelligentDriver {
	return IntelligentDriver{
		MaxSpeed:     maxSpeed,
		Acceleration: 0.73,
		Deceleration: 1.67,
		Headway:      1.6,
		JamGap:       2.0,
		Exponent:     4,
	}
}

// DesiredGap returns the dynamic desired distance s* to a leader at speed leaderSpeed.
func (m IntelligentDriver) DesiredGap(v, leaderSpeed float64) float64 {
	dv := round(math.Abs(leaderSpeed-v), 3)
	return round(m.JamGap+v*m.Headway+v*dv/(2*math.Sqrt(m.Acceleration*m.Deceleration)), 3)
}

func (m IntelligentDriver) SpeedDelta(currentSpeed, speedLimit, gap, obstacleSpeed, _ float64) float64 {
	if gap <= 0 {
		return -currentSpeed
	}
	v0 := effectiveLimit(speedLimit, m.MaxSpeed)
	if v0 <= 0 {
		return -currentSpeed
	}
	free := math.Pow(currentSpeed/v0, m.Exponent)
	interaction := math.Pow(m.DesiredGap(currentSpeed, obstacleSpeed)/gap, 2)
	delta := round(m.Acceleration*(1-free-interaction), 3)
	return Bound(currentSpeed, delta, speedLimit, m.MaxSpeed, gap, obstacleSpeed)
}
