package steering

import (
	"math"
	"sync"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// WalkingHandle walks a pedestrian along its route. Pedestrians never
// collide, so a step always succeeds.
type WalkingHandle struct {
	env    *environment.Environment
	shoes  *vehicle.Vehicle
	walker vehicle.Driver

	mu        sync.Mutex
	route     *graph.Route
	preferred float64
	closed    bool
}

// EnterWalking puts walker into shoes. preferred is the free walking speed;
// zero uses kinematics.PreferredWalkingSpeed.
func EnterWalking(env *environment.Environment, shoes *vehicle.Vehicle, walker vehicle.Driver, preferred float64) (*WalkingHandle, error) {
	if env == nil {
		return nil, fault.Configuration("steering.EnterWalking", "walker has no environment")
	}
	if !shoes.TryEnterDriver(walker) {
		return nil, fault.Transient("steering.EnterWalking", "shoes already worn")
	}
	if preferred <= 0 {
		preferred = kinematics.PreferredWalkingSpeed
	}
	return &WalkingHandle{env: env, shoes: shoes, walker: walker, preferred: preferred}, nil
}

func (h *WalkingHandle) Vehicle() *vehicle.Vehicle { return h.shoes }

func (h *WalkingHandle) Route() *graph.Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

func (h *WalkingHandle) SetRoute(r *graph.Route) error {
	if r == nil || r.Len() == 0 {
		return fault.Configuration("steering.SetRoute", "route has no stops")
	}
	h.mu.Lock()
	h.route = r
	h.mu.Unlock()
	return nil
}

func (h *WalkingHandle) GoalReached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route.GoalReached()
}

// Move walks one tick at the preferred speed, slowed down by the density of
// pedestrians within the perception range ahead.
func (h *WalkingHandle) Move() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.route == nil {
		return fault.Configuration("steering.Move", "no route set")
	}
	prev := h.shoes.Velocity()
	if h.route.GoalReached() {
		h.shoes.SetMotion(0, -prev)
		return nil
	}
	res := h.env.Explore(h.shoes, h.route, kinematics.WalkingPerception)
	density := kinematics.PedestrianDensity(res.CountAhead(kinematics.WalkingPerception), kinematics.WalkingPerception)
	step := math.Min(kinematics.WalkingSpeed(h.preferred, density), h.route.RemainingDistanceToGoal())
	if step <= 0 || !h.env.Move(h.shoes, h.route, step) {
		h.shoes.SetMotion(0, -prev)
		return nil
	}
	h.shoes.SetMotion(step, step-prev)
	return nil
}

func (h *WalkingHandle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshotOf(h.shoes, h.route)
}

func (h *WalkingHandle) Leave() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.shoes.Leave(h.walker) {
		return false
	}
	h.closed = true
	return true
}
