package transit

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// line builds A <-> B, 100 m each way.
func line(t *testing.T) *environment.Environment {
	t.Helper()
	g, err := graph.NewGraph(graph.GraphData{
		Nodes: []graph.Node{{ID: "A", Loc: orb.Point{0, 0}}, {ID: "B", Loc: orb.Point{100, 0}}},
		Edges: []graph.Edge{{ID: "AB", U: "A", V: "B"}, {ID: "BA", U: "B", V: "A"}},
	})
	require.NoError(t, err)
	return environment.New(g, nil)
}

func options() steering.Options {
	log, _ := logtest.NewNullLogger()
	return steering.Options{Log: log}
}

type rider struct {
	id     string
	handle *steering.PassengerHandle
}

func (r *rider) ID() string { return r.id }
func (r *rider) Notify(m vehicle.Message) {
	if r.handle != nil {
		r.handle.Observe(m)
	}
}

func bus(id string, terminates bool) Service {
	return Service{
		ServiceID:       id,
		InitialPosition: "A",
		Route:           []RouteStop{{NodeID: "A", TDwell: 5}, {NodeID: "B", TDwell: 5}},
		Vehicle:         VehicleSpec{Name: "bus", Kind: vehicle.KindBus},
		Terminates:      terminates,
	}
}

// untilState steps s until it reaches state, failing after limit ticks.
func untilState(t *testing.T, s *SimService, state ServiceState, limit int) int {
	t.Helper()
	for tick := 1; tick <= limit; tick++ {
		require.NoError(t, s.Step(1))
		if s.State == state {
			return tick
		}
	}
	t.Fatalf("service %s never reached %s, state %s", s.ServiceID, state, s.State)
	return 0
}

func TestGetFirstStop(t *testing.T) {
	stop, idx, err := GetFirstStop(bus("b", false))
	require.NoError(t, err)
	assert.Equal(t, "B", stop)
	assert.Equal(t, 1, idx)

	svc := bus("b", false)
	svc.InitialPosition = "B"
	stop, idx, err = GetFirstStop(svc)
	require.NoError(t, err)
	assert.Equal(t, "A", stop)
	assert.Zero(t, idx)

	_, _, err = GetFirstStop(Service{ServiceID: "empty"})
	assert.Error(t, err)
	_, _, err = GetFirstStop(Service{ServiceID: "one", InitialPosition: "A", Route: []RouteStop{{NodeID: "A"}}})
	assert.Error(t, err)
}

func TestServiceLoopsBetweenStops(t *testing.T) {
	env := line(t)
	s, err := NewSimService(bus("b1", false), env, options())
	require.NoError(t, err)
	assert.Equal(t, StateStationary, s.State)
	assert.Same(t, s, s.Vehicle().Driver())

	untilState(t, s, StateDwelling, 300)
	at, ok := s.At()
	require.True(t, ok)
	assert.Equal(t, "B", at)
	assert.Equal(t, "A", s.NextStop)
	assert.Zero(t, s.Vehicle().Velocity())

	ticks := untilState(t, s, StateAccelerating, 10)
	assert.Equal(t, 5, ticks, "dwells for the stop's dwell time")
	_, ok = s.At()
	assert.False(t, ok)

	untilState(t, s, StateDwelling, 300)
	at, _ = s.At()
	assert.Equal(t, "A", at)
	assert.Equal(t, "B", s.NextStop)
}

func TestDepartureDelay(t *testing.T) {
	svc := bus("late", false)
	svc.DepartureDelay = 3
	s, err := NewSimService(svc, line(t), options())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Step(1))
		assert.Equal(t, StateStationary, s.State)
	}
	require.NoError(t, s.Step(1))
	assert.Equal(t, StateAccelerating, s.State)
}

func TestRiderAlightsAtExit(t *testing.T) {
	s, err := NewSimService(bus("b1", false), line(t), options())
	require.NoError(t, err)

	r := &rider{id: "r"}
	h, err := s.Board(r, "B")
	require.NoError(t, err)
	r.handle = h
	assert.Equal(t, 1, s.GetLog().Passengers)

	untilState(t, s, StateDwelling, 300)
	assert.True(t, h.GoalReached())
	assert.False(t, h.Terminal())
	assert.True(t, h.Leave())
	assert.Zero(t, s.GetLog().Passengers)
}

func TestBoardingNeedsTheVehicleAtAStop(t *testing.T) {
	s, err := NewSimService(bus("b1", false), line(t), options())
	require.NoError(t, err)
	require.NoError(t, s.Step(1))
	require.NoError(t, s.Step(1))

	_, err = s.Board(&rider{id: "r"}, "B")
	assert.True(t, fault.IsTransient(err))
}

func TestTerminatingService(t *testing.T) {
	s, err := NewSimService(bus("last", true), line(t), options())
	require.NoError(t, err)
	r := &rider{id: "r"}
	h, err := s.Board(r, "C")
	require.NoError(t, err)
	r.handle = h

	untilState(t, s, StateTerminated, 300)
	assert.True(t, h.GoalReached())
	assert.True(t, h.Terminal())
	_, ok := s.At()
	assert.False(t, ok)

	require.NoError(t, s.Step(1))
	assert.Equal(t, StateTerminated, s.State)
	assert.False(t, s.Serves("B"))
}

func TestServiceLog(t *testing.T) {
	s, err := NewSimService(bus("b1", false), line(t), options())
	require.NoError(t, err)
	l := s.GetLog()
	assert.Equal(t, steering.NoEdge, l.EdgeID)
	assert.Equal(t, StateStationary, l.State)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Step(1))
	}
	l = s.GetLog()
	assert.Equal(t, "AB", l.EdgeID)
	assert.Greater(t, l.Offset, 0.0)
	assert.Greater(t, l.Velocity, 0.0)
}

func TestNewSimServiceRejectsBadSetup(t *testing.T) {
	env := line(t)
	_, err := NewSimService(Service{ServiceID: "none"}, env, options())
	assert.True(t, fault.IsConfiguration(err))

	svc := bus("nowhere", false)
	svc.InitialPosition = "Z"
	svc.Route = []RouteStop{{NodeID: "A"}}
	_, err = NewSimService(svc, env, options())
	assert.True(t, fault.IsConfiguration(err))
}

func TestFleet(t *testing.T) {
	env := line(t)
	train := bus("t1", false)
	train.Vehicle.Kind = vehicle.KindTrain
	train.InitialPosition = "B"
	f, err := NewFleet(env, []Service{bus("b1", false), train}, options())
	require.NoError(t, err)
	require.Len(t, f.Services(), 2)

	s, ok := f.Boardable("A", "B")
	require.True(t, ok)
	assert.Equal(t, "b1", s.ServiceID)
	s, ok = f.Boardable("B", "A", vehicle.KindTrain)
	require.True(t, ok)
	assert.Equal(t, "t1", s.ServiceID)
	_, ok = f.Boardable("B", "A", vehicle.KindBus)
	assert.False(t, ok)
	_, ok = f.Boardable("A", "C")
	assert.False(t, ok)
	_, ok = f.Boardable("A", "B", vehicle.KindFerry)
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"A", "B"}, f.Stops(vehicle.KindBus))
	assert.Empty(t, f.Stops(vehicle.KindFerry))

	require.NoError(t, f.Step(1))
	require.NoError(t, f.Step(1))
	assert.Len(t, f.Logs(), 2)
	_, ok = f.Boardable("A", "B")
	assert.False(t, ok, "the bus left A")
	_, ok = f.Boardable("B", "A")
	assert.False(t, ok, "the train left B")

	_, err = NewFleet(env, []Service{{ServiceID: "broken"}}, options())
	assert.Error(t, err)
}

func TestVehicleSpecJSON(t *testing.T) {
	var v VehicleSpec
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "tram", "kind": "train", "capacity": 120,
		"kinematics": {"model": "constant", "a_acc": 1.0, "a_dcc": 1.2, "v_max": 20}
	}`), &v))
	assert.Equal(t, vehicle.KindTrain, v.Kind)
	assert.Equal(t, kinematics.ConstantAcceleration{Traction: 1, Braking: 1.2, MaxSpeed: 20}, v.Kinem)
	spec := v.spec()
	assert.Equal(t, 120, spec.Capacity)
	assert.Equal(t, vehicle.Defaults(vehicle.KindTrain).Length, spec.Length)

	require.NoError(t, json.Unmarshal([]byte(`{"name": "b", "max_speed": 10,
		"kinematics": {"model": "idm", "headway": 2}}`), &v))
	assert.Equal(t, vehicle.KindBus, v.Kind)
	idm, ok := v.Kinem.(kinematics.IntelligentDriver)
	require.True(t, ok)
	assert.Equal(t, 2.0, idm.Headway)
	assert.Equal(t, 10.0, idm.MaxSpeed)

	v = VehicleSpec{}
	require.NoError(t, json.Unmarshal([]byte(`{"name": "plain"}`), &v))
	assert.Nil(t, v.Kinem)

	assert.Error(t, json.Unmarshal([]byte(`{"name": "x", "kinematics": {"model": "warp"}}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"name": "x", "kind": "zeppelin"}`), &v))
}
