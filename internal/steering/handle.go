// Package steering moves vehicles along their routes one tick at a time.
//
// A DriverHandle folds every constraint that applies to the next tick
// (intersections, signals, turns, leaders) into one speed delta and asks the
// environment to move the vehicle. Passengers get an inert handle, walkers a
// density-aware one.
package steering

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/trafficlight"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

const (
	UrbanSafetyDistance        = 50.0  // m; intersections closer than this are arbitrated
	IntersectionAheadClearance = 150.0 // m; no intersection work beyond this
	MinimalExploreDistance     = 30.0  // m
	DefaultExploreFactor       = 6.0   // explore distance per m/s of speed
	GoalSnapDistance           = 3.0   // m
	OvertakingMargin           = 20.0  // m
	OvertakingHorizon          = 10.0  // s
	lanePlanningStops          = 5
	nodeEntryDistance          = 0.001 // m
)

// NoEdge is reported as the current edge while a vehicle is not on one.
const NoEdge = "-1"

// ErrClosed is returned by a handle whose occupant has left the vehicle.
var ErrClosed = errors.New("steering: handle closed")

// Handle is the capability an occupant holds on its vehicle.
type Handle interface {
	Move() error
	GoalReached() bool
	Route() *graph.Route
	SetRoute(r *graph.Route) error
	Vehicle() *vehicle.Vehicle
	Snapshot() Snapshot
	// Leave gets the occupant out and invalidates the handle.
	Leave() bool
}

// Snapshot is the read-only per-tick state of a handle.
type Snapshot struct {
	Velocity        float64            `json:"velocity"`
	Acceleration    float64            `json:"acceleration"`
	RemainingOnEdge float64            `json:"remaining_on_edge"`
	RemainingToGoal float64            `json:"remaining_to_goal"`
	NextPhase       trafficlight.Phase `json:"next_phase"`
	EdgeID          string             `json:"edge_id"`
	SpeedLimit      float64            `json:"speed_limit"`
}

// Options tune a driver handle. The zero value uses the vehicle's traffic
// code, the default explore factor and no overtaking.
type Options struct {
	TrafficCode   string
	ExploreFactor float64
	Overtaking    bool
	Accelerator   kinematics.Accelerator // overrides the per-kind model
	Log           logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ExploreFactor <= 0 {
		o.ExploreFactor = DefaultExploreFactor
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}

// AcceleratorFor returns the longitudinal model for v: IDM for road
// vehicles, Wiedemann for bicycles and constant rates on rails and water.
func AcceleratorFor(v *vehicle.Vehicle, style kinematics.DrivingStyle) kinematics.Accelerator {
	switch v.Kind {
	case vehicle.KindBicycle:
		return kinematics.NewWiedemann(v.MaxSpeed, style)
	case vehicle.KindTrain, vehicle.KindFerry:
		return kinematics.ConstantAcceleration{Traction: v.Spec.Acceleration, Braking: v.Deceleration, MaxSpeed: v.MaxSpeed}
	}
	idm := kinematics.NewIntelligentDriver(v.MaxSpeed)
	if v.Spec.Acceleration > 0 {
		idm.Acceleration = v.Spec.Acceleration
	}
	if v.Deceleration > 0 {
		idm.Deceleration = v.Deceleration
	}
	return idm
}

func snapshotOf(v *vehicle.Vehicle, r *graph.Route) Snapshot {
	s := Snapshot{Velocity: v.Velocity(), Acceleration: v.Acceleration(), EdgeID: NoEdge}
	if r == nil {
		return s
	}
	s.RemainingOnEdge = r.RemainingOnEdge()
	s.RemainingToGoal = r.RemainingDistanceToGoal()
	if c := r.Current(); c != nil {
		s.EdgeID = c.Edge.ID
		s.SpeedLimit = c.Edge.Limit(v.MaxSpeed)
	}
	return s
}
