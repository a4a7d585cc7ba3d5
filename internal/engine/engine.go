// Package engine implements the MMS simulation loop.
//
// The simulation advances in ticks of one second. Each tick runs in order:
//
//  1. Infrastructure pass - traffic light controllers step to the tick and,
//     every SyncEvery ticks, rental stations are synchronised with their last
//     reported occupancy.
//
//  2. Transit pass - every scheduled service departs, drives or dwells.
//
//  3. Traveller pass - every traveller whose departure time has come moves
//     along its multimodal route, switching modes where a leg ends.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/multimodal"
	"github.com/cxd309/mms-engine/internal/parking"
	"github.com/cxd309/mms-engine/internal/rental"
	"github.com/cxd309/mms-engine/internal/trafficlight"
	"github.com/cxd309/mms-engine/internal/transit"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// NewMMS constructs an MMS from a SimulationInput: it builds the graph and
// the infrastructure layers, places each service at its initial position and
// plans every traveller's journey.
func NewMMS(input SimulationInput, opts Options) (*MMS, error) {
	if opts.Steering.Log == nil {
		opts.Steering.Log = logrus.StandardLogger()
	}
	log := opts.Steering.Log.WithField("simulation", input.Meta.SimulationID)

	g, err := graph.NewGraph(input.GraphData)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", fmt.Errorf("building graph: %w", err))
	}

	m := &MMS{
		meta: input.Meta,
		opts: opts,
		log:  log,
		rng:  rand.New(rand.NewPCG(input.Meta.Seed, input.Meta.Seed^0x9e3779b97f4a7c15)),
	}
	if len(input.Lights) > 0 {
		if m.lights, err = trafficlight.NewLayer(g, input.Lights, log); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", fmt.Errorf("traffic lights: %w", err))
		}
	}
	m.env = environment.New(g, m.lights)
	m.layers = &multimodal.Layers{Env: m.env}

	if len(input.BikeStations) > 0 {
		if m.layers.Bikes, err = rental.LoadStations(input.BikeStations, g, vehicle.KindBicycle, m.spawner(vehicle.KindBicycle), log); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", err)
		}
	}
	if len(input.CarStations) > 0 {
		if m.layers.Cars, err = rental.LoadStations(input.CarStations, g, vehicle.KindCar, m.spawner(vehicle.KindCar), log); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", err)
		}
	}
	if len(input.ParkingSpaces) > 0 {
		if m.layers.Parking, err = parking.LoadSpaces(input.ParkingSpaces, g); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", err)
		}
	}

	if m.fleet, err = transit.NewFleet(m.env, input.ServiceList, opts.Steering); err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "engine.NewMMS", err)
	}
	m.layers.Fleet = m.fleet

	for _, in := range input.Travelers {
		tr, err := m.newTraveler(in)
		if err != nil {
			return nil, fmt.Errorf("traveler %q: %w", in.ID, err)
		}
		m.agents = append(m.agents, agent{traveler: tr, departAt: in.DepartAt})
	}
	log.WithFields(logrus.Fields{
		"nodes":     len(g.Nodes()),
		"services":  len(m.fleet.Services()),
		"travelers": len(m.agents),
	}).Info("simulation ready")
	return m, nil
}

// spec returns the configured spec of kind k, falling back to its preset.
func (m *MMS) spec(k vehicle.Kind) vehicle.Spec {
	if s, ok := m.opts.Vehicles[k]; ok {
		return s
	}
	return vehicle.Defaults(k)
}

func (m *MMS) spawner(k vehicle.Kind) rental.Spawner {
	return func(*rental.Station) *vehicle.Vehicle { return vehicle.New(k, m.spec(k)) }
}

func (m *MMS) newTraveler(in TravelerInput) (*multimodal.Traveler, error) {
	mode, err := multimodal.ParseModalChoice(in.Mode)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "engine.newTraveler", err)
	}
	driverType, err := kinematics.ParseDriverType(in.DriverType)
	if err != nil {
		return nil, fault.Wrap(fault.CodeConfiguration, "engine.newTraveler", err)
	}
	cfg := multimodal.Config{
		ID:             in.ID,
		Origin:         in.Origin,
		Goal:           in.Goal,
		Mode:           mode,
		Style:          kinematics.SampleStyle(driverType, m.rng),
		Overtaking:     in.Overtaking,
		PreferredSpeed: in.PreferredSpeed,
		BikeAt:         in.BikeAt,
		CarAt:          in.CarAt,
	}
	if in.OwnBike {
		cfg.Bike = vehicle.New(vehicle.KindBicycle, m.spec(vehicle.KindBicycle))
	}
	if in.OwnCar {
		cfg.Car = vehicle.New(vehicle.KindCar, m.spec(vehicle.KindCar))
		m.parkAtStart(cfg.Car, lo.Ternary(in.CarAt != "", in.CarAt, in.Origin))
	}
	return multimodal.NewTraveler(cfg, m.layers, m.opts.Steering)
}

// parkAtStart docks an own car in a free space at node, if there is one.
func (m *MMS) parkAtStart(car *vehicle.Vehicle, node graph.NodeID) {
	if m.layers.Parking == nil {
		return
	}
	space, ok := lo.Find(m.layers.Parking.Spaces(), func(s *parking.Space) bool {
		return s.Node == node && s.HasCapacity()
	})
	if ok {
		space.Enter(car)
	}
}

// Run executes the full simulation and returns the log. A cancelled context
// stops the run between ticks and returns the rows produced so far.
func (m *MMS) Run(ctx context.Context) (SimulationLog, error) {
	out := SimulationLog{Meta: m.meta}
	every := max(m.meta.LogEvery, 1)
	for m.curTick <= m.meta.RunTime {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("at tick %d: %w", m.curTick, err)
		}
		m.step(ctx)
		if m.curTick%every == 0 {
			row := m.row()
			out.Output = append(out.Output, row)
			if m.opts.Observe != nil {
				m.opts.Observe(row)
			}
		}
		m.curTick++
	}
	m.log.WithFields(logrus.Fields{
		"ticks":   m.meta.RunTime + 1,
		"arrived": lo.CountBy(m.agents, func(a agent) bool { return a.traveler.GoalReached() }),
	}).Info("simulation finished")
	return out, nil
}

// step advances the simulation by one tick.
func (m *MMS) step(ctx context.Context) {
	tick := m.curTick
	m.env.SetTick(tick)

	// Pass 1: infrastructure.
	if m.lights != nil {
		m.lights.Step(tick)
	}
	if m.opts.SyncEvery > 0 && tick > 0 && tick%m.opts.SyncEvery == 0 {
		m.synchronize(ctx)
	}

	// Pass 2: scheduled services.
	if err := m.fleet.Step(1); err != nil {
		m.log.WithError(err).WithField("tick", tick).Warn("transit step failed")
	}

	// Pass 3: travellers.
	for _, a := range m.agents {
		if tick >= a.departAt {
			m.move(a.traveler, tick)
		}
	}
}

// move advances one traveller. A failing or panicking traveller is logged
// and does not stop the others.
func (m *MMS) move(tr *multimodal.Traveler, tick int64) {
	log := m.log.WithFields(logrus.Fields{"agent": tr.ID(), "tick": tick})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("traveler panicked")
		}
	}()
	if err := tr.Move(tick); err != nil {
		if fault.IsTransient(err) {
			log.WithError(err).Debug("traveler move deferred")
			return
		}
		log.WithError(err).Warn("traveler move failed")
	}
}

func (m *MMS) rentalLayers() []*rental.Layer {
	return lo.Compact([]*rental.Layer{m.layers.Bikes, m.layers.Cars})
}

// synchronize reconciles the rental stations, from the occupancy feed when
// one is configured.
func (m *MMS) synchronize(ctx context.Context) {
	for _, l := range m.rentalLayers() {
		if m.opts.Feed == nil {
			l.Synchronize()
			continue
		}
		if err := l.Refresh(ctx, m.opts.Feed); err != nil {
			m.log.WithError(err).WithField("kind", l.Kind).Warn("occupancy feed refresh failed")
		}
	}
}

// row snapshots services, travellers and stations for the log.
func (m *MMS) row() SimulationLogRow {
	return SimulationLogRow{
		Tick:        m.curTick,
		ServiceLogs: m.fleet.Logs(),
		TravelerLogs: lo.Map(m.agents, func(a agent, _ int) multimodal.Log {
			return a.traveler.GetLog()
		}),
		Stations: lo.FlatMap(m.rentalLayers(), func(l *rental.Layer, _ int) []StationLog {
			return lo.Map(l.Stations(), func(st *rental.Station, _ int) StationLog {
				return StationLog{
					Station:   st.Name,
					Kind:      st.Kind,
					Node:      st.Node,
					Count:     st.Count(),
					Rents:     st.Rents(),
					Returns:   st.Returns(),
					SyncDelta: st.SyncDelta(),
				}
			})
		}),
	}
}

// Travelers returns every traveller of the run.
func (m *MMS) Travelers() []*multimodal.Traveler {
	return lo.Map(m.agents, func(a agent, _ int) *multimodal.Traveler { return a.traveler })
}

// RunJSON is the primary entry point for the CLI and WASM targets.
// It accepts a JSON-encoded SimulationInput, runs the simulation, and returns a
// JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	return RunJSONContext(context.Background(), jsonInput, Options{})
}

// RunJSONContext is RunJSON with a context and run options.
func RunJSONContext(ctx context.Context, jsonInput string, opts Options) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fault.Wrap(fault.CodeConfiguration, "engine.RunJSON", fmt.Errorf("invalid input JSON: %w", err))
	}

	mms, err := NewMMS(input, opts)
	if err != nil {
		return "", err
	}

	simLog, err := mms.Run(ctx)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
