package engine

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/multimodal"
	"github.com/cxd309/mms-engine/internal/rental"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/trafficlight"
	"github.com/cxd309/mms-engine/internal/transit"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// SimulationMeta holds the identity and timing parameters for a simulation run.
type SimulationMeta struct {
	SimulationID string `json:"simulation_id"`
	RunTime      int64  `json:"run_time"`            // ticks of one second
	LogEvery     int64  `json:"log_every,omitempty"` // ticks between log rows, 1 when unset
	Seed         uint64 `json:"seed,omitempty"`      // driving style sampling
}

// TravelerInput describes one person of the scenario.
type TravelerInput struct {
	ID             string       `json:"id"`
	Origin         graph.NodeID `json:"origin"`
	Goal           graph.NodeID `json:"goal"`
	Mode           string       `json:"mode"`
	DriverType     string       `json:"driver_type,omitempty"`
	Overtaking     bool         `json:"overtaking,omitempty"`
	PreferredSpeed float64      `json:"preferred_speed,omitempty"` // m/s
	DepartAt       int64        `json:"depart_at,omitempty"`       // tick
	OwnBike        bool         `json:"own_bike,omitempty"`
	BikeAt         graph.NodeID `json:"bike_at,omitempty"`
	OwnCar         bool         `json:"own_car,omitempty"`
	CarAt          graph.NodeID `json:"car_at,omitempty"`
}

// SimulationInput is the JSON-serialisable input to the engine. Station and
// parking layers are GeoJSON FeatureCollections of points.
type SimulationInput struct {
	Meta          SimulationMeta           `json:"simulation_meta"`
	GraphData     graph.GraphData          `json:"graph_data"`
	Lights        []trafficlight.LightSpec `json:"traffic_lights,omitempty"`
	BikeStations  json.RawMessage          `json:"bike_stations,omitempty"`
	CarStations   json.RawMessage          `json:"car_stations,omitempty"`
	ParkingSpaces json.RawMessage          `json:"parking_spaces,omitempty"`
	ServiceList   []transit.Service        `json:"service_list,omitempty"`
	Travelers     []TravelerInput          `json:"travelers"`
}

// StationLog is the state of one rental station.
type StationLog struct {
	Station   string       `json:"station"`
	Kind      vehicle.Kind `json:"kind"`
	Node      graph.NodeID `json:"node"`
	Count     int          `json:"count"`
	Rents     int64        `json:"rents"`
	Returns   int64        `json:"returns"`
	SyncDelta int64        `json:"sync_delta"`
}

// SimulationLogRow is the state of the simulation at a single tick.
type SimulationLogRow struct {
	Tick         int64                `json:"tick"`
	ServiceLogs  []transit.ServiceLog `json:"service_logs"`
	TravelerLogs []multimodal.Log     `json:"traveler_logs"`
	Stations     []StationLog         `json:"stations,omitempty"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta   SimulationMeta     `json:"simulation_meta"`
	Output []SimulationLogRow `json:"output"`
}

// Options tune a run. The zero value steers with each vehicle's own traffic
// code, never synchronises rental stations and logs to the standard logger.
type Options struct {
	Steering steering.Options
	// SyncEvery is the number of ticks between rental synchronisations.
	SyncEvery int64
	// Feed, when set, supplies the counts stations synchronise against.
	Feed rental.OccupancyFeed
	// Vehicles overrides the per-kind presets.
	Vehicles map[vehicle.Kind]vehicle.Spec
	// Observe is called with every row as it is produced.
	Observe func(SimulationLogRow)
}

type agent struct {
	traveler *multimodal.Traveler
	departAt int64
}

// MMS simulation engine state.
type MMS struct {
	meta    SimulationMeta
	opts    Options
	log     logrus.FieldLogger
	env     *environment.Environment
	lights  *trafficlight.Layer
	layers  *multimodal.Layers
	fleet   *transit.Fleet
	agents  []agent
	rng     *rand.Rand
	curTick int64
}
