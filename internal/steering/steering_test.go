package steering

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/trafficlight"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

type person struct {
	id        string
	overtakes bool
	brakes    bool
}

func (p *person) ID() string                     { return p.id }
func (p *person) Style() kinematics.DrivingStyle { return kinematics.NormalStyle() }
func (p *person) Overtaking() bool               { return p.overtakes }
func (p *person) Braking() bool                  { return p.brakes }
func (p *person) Notify(vehicle.Message)         {}

// road builds A -> B -> C with the given length per edge and lane count.
func road(t *testing.T, length float64, lanes int) *graph.Graph {
	t.Helper()
	g, err := graph.NewGraph(graph.GraphData{
		Nodes: []graph.Node{
			{ID: "A", Loc: orb.Point{0, 0}},
			{ID: "B", Loc: orb.Point{0, length}},
			{ID: "C", Loc: orb.Point{0, 2 * length}},
		},
		Edges: []graph.Edge{
			{ID: "AB", U: "A", V: "B", Lanes: lanes},
			{ID: "BC", U: "B", V: "C", Lanes: lanes},
		},
	})
	require.NoError(t, err)
	return g
}

func newCar(maxSpeed float64) *vehicle.Vehicle {
	spec := vehicle.Defaults(vehicle.KindCar)
	spec.MaxSpeed = maxSpeed
	return vehicle.New(vehicle.KindCar, spec)
}

// drive seats d in v at offset on the route A -> to and returns the handle.
func drive(t *testing.T, env *environment.Environment, v *vehicle.Vehicle, d vehicle.Driver, to string, offset float64, opts Options) *DriverHandle {
	t.Helper()
	r, err := env.FindShortestRoute("A", to, graph.ModalityRoad, nil)
	require.NoError(t, err)
	if offset > 0 {
		r.Advance(offset)
		cur := r.Current()
		require.True(t, env.InsertAt(v, cur.Edge, cur.DesiredLane, r.Offset()))
	} else {
		require.True(t, env.Insert(v, "A"))
	}
	log, _ := logtest.NewNullLogger()
	opts.Log = log
	h, err := EnterDriver(env, v, d, opts)
	require.NoError(t, err)
	require.NoError(t, h.SetRoute(r))
	return h
}

func TestRedLightStopsBeforeLine(t *testing.T) {
	g := road(t, 100, 1)
	log, _ := logtest.NewNullLogger()
	lights, err := trafficlight.NewLayer(g, []trafficlight.LightSpec{{Node: "B", Phases: []int{1}}}, log)
	require.NoError(t, err)
	lights.Step(0)
	env := environment.New(g, lights)

	car := newCar(13.89)
	h := drive(t, env, car, &person{id: "d"}, "C", 95, Options{})
	car.SetMotion(8, 0)
	for tick := 0; tick < 30; tick++ {
		require.NoError(t, h.Move())
		pl, ok := env.Placement(car)
		require.True(t, ok)
		require.Equal(t, "AB", pl.Edge.ID, "tick %d", tick)
		require.LessOrEqual(t, pl.Offset, 100.0)
	}
	assert.Less(t, car.Velocity(), 0.5)
	assert.Equal(t, trafficlight.PhaseRed, h.Snapshot().NextPhase)
}

func TestGreenLightPasses(t *testing.T) {
	g := road(t, 100, 1)
	log, _ := logtest.NewNullLogger()
	lights, err := trafficlight.NewLayer(g, []trafficlight.LightSpec{{Node: "B", Phases: []int{3}}}, log)
	require.NoError(t, err)
	lights.Step(0)
	env := environment.New(g, lights)

	car := newCar(13.89)
	h := drive(t, env, car, &person{id: "d"}, "C", 0, Options{})
	for tick := 0; tick < 100 && !h.GoalReached(); tick++ {
		require.NoError(t, h.Move())
	}
	assert.True(t, h.GoalReached())
	assert.Zero(t, car.Velocity())
}

// averageSpeed runs a fast car behind a slow one on a two-lane road.
func averageSpeed(t *testing.T, overtaking bool) float64 {
	env := environment.New(road(t, 1000, 2), nil)
	slow := drive(t, env, newCar(3), &person{id: "slow"}, "B", 30, Options{})
	fast := drive(t, env, newCar(13.89), &person{id: "fast", overtakes: true}, "B", 0, Options{Overtaking: overtaking})

	const ticks = 60
	start := fast.Route().RemainingDistanceToGoal()
	for tick := 0; tick < ticks; tick++ {
		env.SetTick(int64(tick))
		require.NoError(t, slow.Move())
		require.NoError(t, fast.Move())
	}
	return (start - fast.Route().RemainingDistanceToGoal()) / ticks
}

func TestOvertakingRaisesAverageSpeed(t *testing.T) {
	with := averageSpeed(t, true)
	without := averageSpeed(t, false)
	assert.Greater(t, with, without)
	assert.Less(t, without, 4.0, "stuck behind the slow car")
}

func TestFollowerNeverRunsIntoLeader(t *testing.T) {
	env := environment.New(road(t, 1000, 1), nil)
	slow := drive(t, env, newCar(3), &person{id: "slow"}, "B", 20, Options{})
	fast := drive(t, env, newCar(13.89), &person{id: "fast"}, "B", 0, Options{})
	for tick := 0; tick < 80; tick++ {
		require.NoError(t, slow.Move())
		require.NoError(t, fast.Move())
		a, _ := env.Placement(slow.Vehicle())
		b, _ := env.Placement(fast.Vehicle())
		require.LessOrEqual(t, b.Offset, a.Offset-slow.Vehicle().Length(), "tick %d", tick)
	}
}

func TestEmergencyBraking(t *testing.T) {
	env := environment.New(road(t, 1000, 1), nil)
	d := &person{id: "d"}
	car := newCar(13.89)
	h := drive(t, env, car, d, "B", 100, Options{})
	car.SetMotion(10, 0)
	d.brakes = true
	require.NoError(t, h.Move())
	assert.Less(t, car.Velocity(), 10.0)
	for i := 0; i < 20; i++ {
		require.NoError(t, h.Move())
	}
	assert.Zero(t, car.Velocity())
}

func TestSetRouteRejectsEmptyRoute(t *testing.T) {
	env := environment.New(road(t, 100, 1), nil)
	h, err := EnterDriver(env, newCar(10), &person{id: "d"}, Options{})
	require.NoError(t, err)
	err = h.SetRoute(nil)
	assert.True(t, fault.IsConfiguration(err))
	empty, _ := graph.NewRoute(nil, 0)
	assert.True(t, fault.IsConfiguration(h.SetRoute(empty)))
}

func TestEnterDriverChecks(t *testing.T) {
	car := newCar(10)
	_, err := EnterDriver(nil, car, &person{id: "d"}, Options{})
	assert.True(t, fault.IsConfiguration(err))

	env := environment.New(road(t, 100, 1), nil)
	_, err = EnterDriver(env, car, &person{id: "d"}, Options{TrafficCode: "nowhere"})
	assert.True(t, fault.IsConfiguration(err))
	assert.Nil(t, car.Driver(), "seat stays free after a failed entry")

	h, err := EnterDriver(env, car, &person{id: "d"}, Options{})
	require.NoError(t, err)
	_, err = EnterDriver(env, car, &person{id: "e"}, Options{})
	assert.True(t, fault.IsTransient(err))

	assert.True(t, h.Leave())
	assert.False(t, h.Leave())
	assert.ErrorIs(t, h.Move(), ErrClosed)
}

func TestPlanLanesFollowsTurns(t *testing.T) {
	g, err := graph.NewGraph(graph.GraphData{
		Nodes: []graph.Node{
			{ID: "A", Loc: orb.Point{0, 0}},
			{ID: "B", Loc: orb.Point{0, 100}},
			{ID: "C", Loc: orb.Point{100, 100}},
			{ID: "D", Loc: orb.Point{100, 200}},
		},
		Edges: []graph.Edge{
			{ID: "AB", U: "A", V: "B", Lanes: 3},
			{ID: "BC", U: "B", V: "C", Lanes: 3},
			{ID: "CD", U: "C", V: "D", Lanes: 3},
		},
	})
	require.NoError(t, err)
	env := environment.New(g, nil)
	car := newCar(13.89)
	require.True(t, env.Insert(car, "A"))
	h, err := EnterDriver(env, car, &person{id: "d"}, Options{})
	require.NoError(t, err)
	r, err := env.FindShortestRoute("A", "D", graph.ModalityRoad, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetRoute(r))
	require.NoError(t, h.Move())

	stops := r.Stops()
	assert.Equal(t, 2, stops[0].DesiredLane, "right turn at B")
	assert.Equal(t, 0, stops[1].DesiredLane, "left turn at C")
	pl, _ := env.Placement(car)
	assert.Equal(t, 2, pl.Lane)
}

func TestPassengerHandle(t *testing.T) {
	spec := vehicle.Defaults(vehicle.KindBus)
	bus := vehicle.New(vehicle.KindBus, spec)
	p := &person{id: "p"}
	h, err := EnterPassenger(bus, p, "C")
	require.NoError(t, err)
	bus.SetMotion(6, 1)

	assert.NoError(t, h.Move())
	assert.InDelta(t, 6, h.Snapshot().Velocity, 1e-9)
	assert.Equal(t, NoEdge, h.Snapshot().EdgeID)

	h.Observe(vehicle.Message{Kind: vehicle.StopReached, Node: "B"})
	assert.False(t, h.GoalReached())
	h.Observe(vehicle.Message{Kind: vehicle.StopReached, Node: "C"})
	assert.True(t, h.GoalReached())
	assert.False(t, h.Terminal())

	assert.True(t, h.Leave())
	assert.False(t, bus.Contains(p))
}

func TestWalkingSlowsDownInCrowds(t *testing.T) {
	env := environment.New(road(t, 100, 1), nil)
	walk := func(id string) *WalkingHandle {
		shoes := vehicle.New(vehicle.KindWalkingShoes, vehicle.Defaults(vehicle.KindWalkingShoes))
		h, err := EnterWalking(env, shoes, &person{id: id}, 0)
		require.NoError(t, err)
		r, err := env.FindShortestRoute("A", "C", graph.ModalityWalking, nil)
		require.NoError(t, err)
		require.NoError(t, h.SetRoute(r))
		return h
	}

	alone := walk("alone")
	require.NoError(t, alone.Move())
	assert.InDelta(t, kinematics.PreferredWalkingSpeed, alone.Vehicle().Velocity(), 1e-9)

	ab, _ := env.Graph().GetEdgeByID("AB")
	crowd := walk("crowd")
	for i := 0; i < 12; i++ {
		shoes := vehicle.New(vehicle.KindWalkingShoes, vehicle.Defaults(vehicle.KindWalkingShoes))
		require.True(t, env.InsertAt(shoes, ab, 0, 1+float64(i)*0.25), fmt.Sprint(i))
	}
	require.NoError(t, crowd.Move())
	assert.Less(t, crowd.Vehicle().Velocity(), kinematics.PreferredWalkingSpeed)

	for i := 0; i < 200 && !alone.GoalReached(); i++ {
		require.NoError(t, alone.Move())
	}
	assert.True(t, alone.GoalReached())
}

func TestTurnIsTakenAtTurningSpeed(t *testing.T) {
	g, err := graph.NewGraph(graph.GraphData{
		Nodes: []graph.Node{
			{ID: "A", Loc: orb.Point{0, 0}},
			{ID: "B", Loc: orb.Point{0, 200}},
			{ID: "C", Loc: orb.Point{300, 200}},
		},
		Edges: []graph.Edge{
			{ID: "AB", U: "A", V: "B"},
			{ID: "BC", U: "B", V: "C"},
		},
	})
	require.NoError(t, err)
	env := environment.New(g, nil)
	turn, ok := vehicle.VehicleTurningSpeeds.Speed(graph.Right)
	require.True(t, ok)
	ab, err := g.GetEdgeByID("AB")
	require.NoError(t, err)
	bc, err := g.GetEdgeByID("BC")
	require.NoError(t, err)
	require.Equal(t, graph.Right, graph.Turn(ab, bc))

	car := newCar(13.89)
	h := drive(t, env, car, &person{id: "d"}, "C", 0, Options{})
	crossed, faster := false, false
	approach := 0.0
	for tick := 0; tick < 200 && !h.GoalReached(); tick++ {
		require.NoError(t, h.Move())
		pl, ok := env.Placement(car)
		require.True(t, ok)
		switch {
		case pl.Edge.ID == "AB":
			approach = max(approach, car.Velocity())
		case !crossed:
			crossed = true
			assert.LessOrEqual(t, car.Velocity(), turn+0.01, "through the turn")
		case car.Velocity() > turn+1:
			faster = true
		}
	}
	assert.Greater(t, approach, turn+1, "faster than the turn before braking for it")
	assert.True(t, crossed)
	assert.True(t, faster, "speeds up again after the turn")
}

func TestAcceleratorForUsesTheVehicleRates(t *testing.T) {
	spec := vehicle.Defaults(vehicle.KindTrain)
	spec.Acceleration, spec.Deceleration, spec.MaxSpeed = 0.8, 1.1, 30
	train := AcceleratorFor(vehicle.New(vehicle.KindTrain, spec), kinematics.NormalStyle())
	assert.Equal(t, kinematics.ConstantAcceleration{Traction: 0.8, Braking: 1.1, MaxSpeed: 30}, train)

	spec = vehicle.Defaults(vehicle.KindCar)
	spec.Acceleration, spec.Deceleration = 1.2, 2.5
	idm, ok := AcceleratorFor(vehicle.New(vehicle.KindCar, spec), kinematics.NormalStyle()).(kinematics.IntelligentDriver)
	require.True(t, ok)
	assert.Equal(t, 1.2, idm.Acceleration)
	assert.Equal(t, 2.5, idm.Deceleration)

	spec.Acceleration, spec.Deceleration = 0, 0
	idm, _ = AcceleratorFor(vehicle.New(vehicle.KindCar, spec), kinematics.NormalStyle()).(kinematics.IntelligentDriver)
	assert.Equal(t, kinematics.NewIntelligentDriver(spec.MaxSpeed), idm, "unset rates keep the model defaults")

	_, ok = AcceleratorFor(vehicle.New(vehicle.KindBicycle, vehicle.Defaults(vehicle.KindBicycle)), kinematics.NormalStyle()).(kinematics.Wiedemann)
	assert.True(t, ok)
}
