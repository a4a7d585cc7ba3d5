package intersection

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/trafficlight"
)

// EvaluateSignal returns the constraint a light phase imposes on a. On
// yellow the vehicle only brakes when it can stop within maxDeceleration;
// otherwise it is committed to cross. Red always yields the stop delta.
func EvaluateSignal(a Approach, accel kinematics.Accelerator, maxDeceleration float64, log logrus.FieldLogger) float64 {
	switch a.Phase {
	case trafficlight.PhaseYellow:
		delta := yield(accel, a)
		if math.Abs(delta) <= maxDeceleration {
			return delta
		}
		return kinematics.Unconstrained
	case trafficlight.PhaseRed:
		if a.Privileged && log != nil {
			log.WithFields(logrus.Fields{"vehicle": a.EntityID, "node": a.Node}).
				Warn("force green not implemented")
		}
		return yield(accel, a)
	}
	return kinematics.Unconstrained
}
