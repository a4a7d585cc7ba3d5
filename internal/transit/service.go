// Package transit runs scheduled bus, train and ferry services. Each service
// drives its own vehicle from stop to stop, dwells there and lets riders
// board and alight.
package transit

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// ServiceID is a unique string identifier for a service.
type ServiceID = string

// ServiceState describes the current motion state of a service.
type ServiceState string

const (
	StateStationary   ServiceState = "stationary"
	StateDwelling     ServiceState = "dwelling"
	StateAccelerating ServiceState = "accelerating"
	StateDecelerating ServiceState = "decelerating"
	StateCruising     ServiceState = "cruising"
	StateTerminated   ServiceState = "terminated"
)

// accelerationBand separates cruising from speeding up or slowing down.
const accelerationBand = 0.01 // m/s²

// RouteStop is a node on a service's route with a required dwell time.
type RouteStop struct {
	NodeID graph.NodeID `json:"node_id"`
	TDwell float64      `json:"t_dwell"` // seconds
}

// Service is the static definition of a scheduled service.
type Service struct {
	ServiceID       ServiceID    `json:"service_id"`
	InitialPosition graph.NodeID `json:"initial_position"`
	Route           []RouteStop  `json:"route"`
	Vehicle         VehicleSpec  `json:"vehicle"`
	// DepartureDelay is the number of simulation-seconds the service waits
	// stationary before beginning to move. Zero = immediate.
	DepartureDelay float64 `json:"departure_delay,omitempty"` // seconds
	// Terminates ends the service at its last stop instead of looping.
	Terminates bool `json:"terminates,omitempty"`
}

// SimService is a Service enriched with live simulation state. It is the
// driver of its own vehicle.
type SimService struct {
	Service
	State          ServiceState
	RemainingDwell float64
	RemainingDelay float64
	NextStop       graph.NodeID
	nextStopIndex  int
	at             graph.NodeID // stop the vehicle stands at, empty while moving

	env     *environment.Environment
	vehicle *vehicle.Vehicle
	handle  *steering.DriverHandle
	log     logrus.FieldLogger
}

// GetFirstStop returns the first target stop node ID and its index in svc.Route.
// If the service starts at the first route stop, the second stop is returned instead.
func GetFirstStop(svc Service) (graph.NodeID, int, error) {
	if len(svc.Route) == 0 {
		return "", 0, fmt.Errorf("service %q has no route stops", svc.ServiceID)
	}
	if svc.InitialPosition == svc.Route[0].NodeID {
		if len(svc.Route) < 2 {
			return "", 0, fmt.Errorf("service %q: initial position is the only stop", svc.ServiceID)
		}
		return svc.Route[1].NodeID, 1, nil
	}
	return svc.Route[0].NodeID, 0, nil
}

// NewSimService places the service's vehicle at its initial position in env
// and takes the driver's seat.
func NewSimService(svc Service, env *environment.Environment, opts steering.Options) (*SimService, error) {
	nextStop, nextStopIdx, err := GetFirstStop(svc)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "transit.NewSimService", err)
	}
	if svc.Vehicle.Kind == "" {
		svc.Vehicle.Kind = vehicle.KindBus
	}
	veh := vehicle.NewWithID(svc.ServiceID, svc.Vehicle.Kind, svc.Vehicle.spec())
	if !env.Insert(veh, svc.InitialPosition) {
		return nil, fault.Configuration("transit.NewSimService",
			fmt.Sprintf("service %q cannot be placed at %q", svc.ServiceID, svc.InitialPosition))
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if svc.Vehicle.Kinem != nil {
		opts.Accelerator = svc.Vehicle.Kinem
	}
	s := &SimService{
		Service:        svc,
		State:          StateStationary,
		RemainingDelay: svc.DepartureDelay,
		NextStop:       nextStop,
		nextStopIndex:  nextStopIdx,
		at:             svc.InitialPosition,
		env:            env,
		vehicle:        veh,
		log:            opts.Log.WithField("vehicle", svc.ServiceID),
	}
	h, err := steering.EnterDriver(env, veh, s, opts)
	if err != nil {
		env.Remove(veh)
		return nil, err
	}
	s.handle = h
	return s, nil
}

func (s *SimService) ID() string                     { return "driver-" + s.ServiceID }
func (s *SimService) Style() kinematics.DrivingStyle { return kinematics.NormalStyle() }
func (s *SimService) Overtaking() bool               { return false }
func (s *SimService) Braking() bool                  { return false }

// Vehicle returns the vehicle the service runs with.
func (s *SimService) Vehicle() *vehicle.Vehicle { return s.vehicle }

// Step advances the service by dt seconds.
func (s *SimService) Step(dt float64) error {
	switch s.State {
	case StateTerminated:
		return nil
	case StateStationary:
		s.RemainingDelay -= dt
		if s.RemainingDelay > 0 {
			return nil
		}
		return s.depart()
	case StateDwelling:
		s.AdvanceDwell(dt)
		if s.State == StateDwelling {
			return nil
		}
		return s.depart()
	}

	if err := s.handle.Move(); err != nil {
		return err
	}
	if s.handle.GoalReached() {
		s.ArriveAtStop()
		return nil
	}
	switch a := s.vehicle.Acceleration(); {
	case a > accelerationBand:
		s.State = StateAccelerating
	case a < -accelerationBand:
		s.State = StateDecelerating
	default:
		s.State = StateCruising
	}
	return nil
}

func (s *SimService) depart() error {
	r, err := s.env.FindShortestRoute(s.at, s.NextStop, s.vehicle.Modality(), nil)
	if err != nil {
		return fault.Wrap(fault.CodeConfiguration, "transit.depart", err)
	}
	if err := s.handle.SetRoute(r); err != nil {
		return err
	}
	s.at = ""
	s.State = StateAccelerating
	return nil
}

// AdvanceDwell decrements the remaining dwell time by dt seconds.
// If the service is not yet dwelling it is transitioned into the dwelling state first.
func (s *SimService) AdvanceDwell(dt float64) {
	if s.State != StateDwelling {
		s.startDwell()
	}
	s.RemainingDwell -= dt
	if s.RemainingDwell <= 0 {
		s.endDwell()
	}
}

// ArriveAtStop tells the riders where the vehicle is and starts dwelling,
// or ends the service at the terminus.
func (s *SimService) ArriveAtStop() {
	s.at = s.NextStop
	s.vehicle.Notify(vehicle.Message{Kind: vehicle.StopReached, Node: s.at})
	if s.Terminates && s.nextStopIndex == len(s.Route)-1 {
		s.State = StateTerminated
		s.vehicle.Notify(vehicle.Message{Kind: vehicle.TerminalStation, Node: s.at})
		s.log.WithField("node", s.at).Info("service terminated")
		return
	}
	s.startDwell()
}

func (s *SimService) startDwell() {
	s.State = StateDwelling
	s.vehicle.SetMotion(0, 0)
	s.RemainingDwell = s.Route[s.nextStopIndex].TDwell
	s.advanceNextStop()
}

func (s *SimService) endDwell() {
	s.State = StateAccelerating
	s.RemainingDwell = 0
}

func (s *SimService) advanceNextStop() {
	s.nextStopIndex = (s.nextStopIndex + 1) % len(s.Route)
	s.NextStop = s.Route[s.nextStopIndex].NodeID
}

// At returns the stop the vehicle stands at and whether it stands at one.
func (s *SimService) At() (graph.NodeID, bool) {
	return s.at, s.at != "" && s.State != StateTerminated
}

// Serves reports whether node is among the stops still ahead: the rest of
// the line for a terminating service, one full loop otherwise.
func (s *SimService) Serves(node graph.NodeID) bool {
	if s.State == StateTerminated {
		return false
	}
	if s.Terminates {
		return slices.ContainsFunc(s.Route[s.nextStopIndex:], func(r RouteStop) bool { return r.NodeID == node })
	}
	return slices.ContainsFunc(s.Route, func(r RouteStop) bool { return r.NodeID == node })
}

// Board seats p until the vehicle stops at exit.
func (s *SimService) Board(p vehicle.Passenger, exit graph.NodeID) (*steering.PassengerHandle, error) {
	if _, ok := s.At(); !ok {
		return nil, fault.Transient("transit.Board", "service "+s.ServiceID+" is not at a stop")
	}
	return steering.EnterPassenger(s.vehicle, p, exit)
}

// ServiceLog is a point-in-time snapshot of a SimService's state.
type ServiceLog struct {
	ServiceID      ServiceID    `json:"service_id"`
	EdgeID         string       `json:"edge_id"`
	Offset         float64      `json:"offset"`
	State          ServiceState `json:"state"`
	Velocity       float64      `json:"velocity"`
	RemainingDwell float64      `json:"remaining_dwell"`
	NextStop       graph.NodeID `json:"next_stop"`
	Passengers     int          `json:"passengers"`
}

// GetLog returns a point-in-time snapshot of the service state.
func (s *SimService) GetLog() ServiceLog {
	l := ServiceLog{
		ServiceID:      s.ServiceID,
		EdgeID:         steering.NoEdge,
		State:          s.State,
		Velocity:       s.vehicle.Velocity(),
		RemainingDwell: s.RemainingDwell,
		NextStop:       s.NextStop,
		Passengers:     len(s.vehicle.Passengers()),
	}
	if pl, ok := s.env.Placement(s.vehicle); ok && pl.Edge != nil {
		l.EdgeID, l.Offset = pl.Edge.ID, pl.Offset
	}
	return l
}
