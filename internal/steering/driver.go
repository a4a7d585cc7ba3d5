package steering

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/intersection"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/trafficlight"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// DriverHandle steers a vehicle for its driver.
type DriverHandle struct {
	env     *environment.Environment
	vehicle *vehicle.Vehicle
	driver  vehicle.Driver
	accel   kinematics.Accelerator
	policy  intersection.Policy
	opts    Options
	log     logrus.FieldLogger

	mu        sync.Mutex
	route     *graph.Route
	nextPhase trafficlight.Phase
	lastEdge  graph.EdgeID
	closed    bool
}

// EnterDriver seats d in v and returns the handle steering it through env.
func EnterDriver(env *environment.Environment, v *vehicle.Vehicle, d vehicle.Driver, opts Options) (*DriverHandle, error) {
	if env == nil {
		return nil, fault.Configuration("steering.EnterDriver", "vehicle has no environment")
	}
	opts = opts.withDefaults()
	accel := opts.Accelerator
	if accel == nil {
		accel = AcceleratorFor(v, d.Style())
	}
	code := v.TrafficCode
	if opts.TrafficCode != "" {
		code = opts.TrafficCode
	}
	policy, err := intersection.New(code, env.Claims(), accel)
	if err != nil {
		return nil, err
	}
	if !v.TryEnterDriver(d) {
		return nil, fault.Transient("steering.EnterDriver", "driver seat of "+v.ID()+" is taken")
	}
	return &DriverHandle{
		env:     env,
		vehicle: v,
		driver:  d,
		accel:   accel,
		policy:  policy,
		opts:    opts,
		log:     opts.Log.WithFields(logrus.Fields{"vehicle": v.ID(), "agent": d.ID()}),
	}, nil
}

func (h *DriverHandle) Vehicle() *vehicle.Vehicle { return h.vehicle }

func (h *DriverHandle) Route() *graph.Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

// SetRoute replaces the route. A route without stops is a setup mistake.
func (h *DriverHandle) SetRoute(r *graph.Route) error {
	if r == nil || r.Len() == 0 {
		return fault.Configuration("steering.SetRoute", "route has no stops")
	}
	h.mu.Lock()
	h.route = r
	h.lastEdge = ""
	h.mu.Unlock()
	return nil
}

func (h *DriverHandle) GoalReached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route.GoalReached()
}

func (h *DriverHandle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := snapshotOf(h.vehicle, h.route)
	s.NextPhase = h.nextPhase
	return s
}

// Leave gets the driver out of the vehicle.
func (h *DriverHandle) Leave() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if !h.vehicle.Leave(h.driver) {
		return false
	}
	h.closed = true
	return true
}

// Move advances the vehicle by one tick.
func (h *DriverHandle) Move() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.route == nil {
		return fault.Configuration("steering.Move", "no route set")
	}
	if h.route.GoalReached() {
		return nil
	}

	pl, placed := h.env.Placement(h.vehicle)
	if !placed || pl.Edge == nil {
		h.planLanes()
		if !h.env.Move(h.vehicle, h.route, nodeEntryDistance) {
			return fault.Configuration("steering.Move",
				fmt.Sprintf("vehicle %s cannot enter its route at %s", h.vehicle.ID(), h.route.Start()))
		}
		h.lastEdge = h.route.Current().Edge.ID
		return nil
	}
	if cur := h.route.Current(); cur.Edge.ID != h.lastEdge {
		h.lastEdge = cur.Edge.ID
		h.planLanes()
	}

	v := h.vehicle.Velocity()
	limit := h.route.Current().Edge.Limit(h.vehicle.MaxSpeed)
	res := h.env.Explore(h.vehicle, h.route, math.Max(MinimalExploreDistance, h.opts.ExploreFactor*v))

	constraint := kinematics.Unconstrained
	if h.driver.Braking() {
		constraint = h.accel.SpeedDelta(v, limit, kinematics.BrakingDistance(v), 0, 0)
	} else {
		constraint = math.Min(constraint, h.intersections(res, v, limit))
		if h.vehicle.Collides() {
			constraint = math.Min(constraint, h.following(res, pl.Lane, v, limit))
		}
	}

	var distance float64
	switch remaining := h.route.RemainingDistanceToGoal(); {
	case remaining < GoalSnapDistance:
		distance = remaining
	case constraint < kinematics.Unconstrained:
		distance = v + constraint
	default:
		distance = v + h.accel.SpeedDelta(v, limit, kinematics.FreeDrivingClearance, limit, 0)
	}
	h.commit(v, distance)
	return nil
}

func (h *DriverHandle) commit(v, distance float64) {
	switch {
	case distance <= 0:
		h.vehicle.SetMotion(0, -v)
	case h.env.Move(h.vehicle, h.route, distance):
		velocity := math.Round(distance*100) / 100
		h.vehicle.SetMotion(velocity, distance-v)
	default:
		h.log.WithField("distance", distance).Debug("move rejected")
		h.vehicle.SetMotion(0, -v)
	}
	if h.route.GoalReached() {
		h.vehicle.SetMotion(0, -v)
	}
}

// intersections folds the turn, signal and right-of-way constraints of the
// nodes within UrbanSafetyDistance.
func (h *DriverHandle) intersections(res environment.ExploreResult, v, limit float64) float64 {
	h.nextPhase = trafficlight.PhaseNone
	if len(res.Edges) == 0 || res.Edges[0].DistanceToEnd > IntersectionAheadClearance {
		return kinematics.Unconstrained
	}
	if last := res.Edges[0]; len(res.Edges) == 1 && last.Next == nil && last.DistanceToEnd < UrbanSafetyDistance {
		return h.accel.SpeedDelta(v, limit, last.DistanceToEnd, 0, 0)
	}

	constraint := kinematics.Unconstrained
	cached := false
	for _, x := range res.Edges {
		if x.Next == nil || x.DistanceToEnd > UrbanSafetyDistance {
			break
		}
		dir := graph.Turn(x.Stop.Edge, x.Next.Edge)
		constraint = math.Min(constraint, h.turning(v, limit, dir, x.DistanceToEnd))

		node := x.Stop.Edge.V
		h.env.Claims().Claim(environment.Claim{
			EntityID:  h.vehicle.ID(),
			Node:      node,
			Incoming:  x.Stop.Edge,
			Outgoing:  x.Next.Edge,
			Direction: dir,
			Distance:  x.DistanceToEnd,
			Tick:      h.env.Tick(),
		})
		a := intersection.Approach{
			EntityID:   h.vehicle.ID(),
			Node:       node,
			Incoming:   x.Stop.Edge,
			Outgoing:   x.Next.Edge,
			Direction:  dir,
			Distance:   x.DistanceToEnd,
			Velocity:   v,
			SpeedLimit: limit,
			Signalized: x.Signalized,
			Phase:      x.Phase,
			Privileged: h.vehicle.Privileged,
		}
		switch {
		case x.Signalized:
			if !cached {
				h.nextPhase, cached = x.Phase, true
			}
			constraint = math.Min(constraint, intersection.EvaluateSignal(a, h.accel, h.vehicle.Deceleration, h.log))
		case len(h.env.Graph().Incoming(node)) > 1:
			constraint = math.Min(constraint, h.policy.Evaluate(a))
		}
	}
	return constraint
}

// turning keeps the vehicle at or below the turning speed of a turn ahead.
// Below it the vehicle may only speed up to it; above it the turn is treated
// as a leader driving at the turning speed, and within braking reach (or one
// tick of travel) the vehicle drops to the turning speed.
func (h *DriverHandle) turning(v, limit float64, dir graph.DirectionType, distance float64) float64 {
	turn, ok := h.vehicle.TurningSpeed(dir)
	if !ok {
		return kinematics.Unconstrained
	}
	if v <= turn {
		return turn - v
	}
	c := h.accel.SpeedDelta(v, limit, distance, turn, 0)
	if distance <= math.Max(kinematics.BrakingDistance(v), v) {
		c = math.Min(c, turn-v)
	}
	return c
}

// following returns the car-following constraint for the nearest leader and
// picks an overtaking lane when the leader slows the vehicle down.
func (h *DriverHandle) following(res environment.ExploreResult, lane int, v, limit float64) float64 {
	leader, ok := h.leader(res, lane)
	if !ok {
		return kinematics.Unconstrained
	}
	c := h.accel.SpeedDelta(v, limit, leader.Gap, leader.Entity.Velocity(), leader.Entity.Acceleration())
	if c < 0 && h.opts.Overtaking && h.driver.Overtaking() {
		h.overtake(res, lane, v)
	}
	return c
}

// leader is the closest entity ahead on the lane the vehicle is in or heading
// for on the current edge, and on the desired lane of later stops.
func (h *DriverHandle) leader(res environment.ExploreResult, lane int) (environment.Sighting, bool) {
	if len(res.Edges) == 0 {
		return environment.Sighting{}, false
	}
	first := res.Edges[0]
	best, found := first.FirstAhead(lane)
	if s, ok := first.FirstAhead(first.Stop.DesiredLane); ok && (!found || s.Gap < best.Gap) {
		best, found = s, true
	}
	if found {
		return best, true
	}
	return environment.ExploreResult{Edges: res.Edges[1:]}.Nearest()
}

func gapOnLane(x environment.EdgeExplore, lane int) float64 {
	if s, ok := x.FirstAhead(lane); ok {
		return s.Gap
	}
	return kinematics.Unconstrained
}

func (h *DriverHandle) safeBehind(x environment.EdgeExplore, lane int, v float64) bool {
	s, ok := x.FirstBehind(lane)
	if !ok {
		return true
	}
	bv := s.Entity.Velocity()
	return bv <= v || s.Gap > (bv-v)*OvertakingHorizon+OvertakingMargin
}

// overtake evaluates the neighbouring lanes and records the better one as
// the desired lane for the next stops. The left lane wins ties.
func (h *DriverHandle) overtake(res environment.ExploreResult, lane int, v float64) {
	x := res.Edges[0]
	r, ok := x.Stop.Edge.LaneRange(h.vehicle.Modality())
	if !ok || r.Width() < 2 {
		return
	}
	current := gapOnLane(x, lane)
	best, bestGap := -1, 0.0
	for _, candidate := range []int{lane - 1, lane + 1} {
		if !r.Contains(candidate) {
			continue
		}
		g := gapOnLane(x, candidate)
		if g < current || !h.safeBehind(x, candidate, v) {
			continue
		}
		if best < 0 || g > bestGap {
			best, bestGap = candidate, g
		}
	}
	if best < 0 {
		return
	}
	h.log.WithFields(logrus.Fields{"from": lane, "to": best}).Debug("overtaking")
	for i, s := range h.route.Stops() {
		if i >= lanePlanningStops {
			break
		}
		if sr, ok := s.Edge.LaneRange(h.vehicle.Modality()); ok && sr.Contains(best) {
			s.DesiredLane = best
		}
	}
}

// planLanes sets the desired lane of the next stops by the turn at their end:
// left turns take the leftmost lane, right turns the rightmost.
func (h *DriverHandle) planLanes() {
	stops := h.route.Stops()
	for i := 0; i+1 < len(stops) && i < lanePlanningStops; i++ {
		s := stops[i]
		r, ok := s.Edge.LaneRange(h.vehicle.Modality())
		if !ok {
			continue
		}
		switch dir := graph.Turn(s.Edge, stops[i+1].Edge); {
		case dir.IsLeftish():
			s.DesiredLane = r.First
		case dir.IsRightish():
			s.DesiredLane = r.Last
		}
	}
}
