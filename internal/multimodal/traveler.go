package multimodal

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/parking"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// Whereabouts tells where a traveller currently is.
type Whereabouts int

const (
	Offside Whereabouts = iota
	Sidewalk
	InVehicle
)

func (w Whereabouts) String() string {
	switch w {
	case Sidewalk:
		return "sidewalk"
	case InVehicle:
		return "vehicle"
	}
	return "offside"
}

func (w Whereabouts) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Whereabouts) UnmarshalText(b []byte) error {
	for _, c := range []Whereabouts{Offside, Sidewalk, InVehicle} {
		if c.String() == string(b) {
			*w = c
			return nil
		}
	}
	return fmt.Errorf("unknown whereabouts %q", b)
}

// Config describes a traveller.
type Config struct {
	ID             string
	Origin, Goal   graph.NodeID
	Mode           ModalChoice
	Style          kinematics.DrivingStyle
	Overtaking     bool
	PreferredSpeed float64 // m/s, walking

	// Bike is an own bicycle standing at BikeAt (Origin when empty).
	Bike   *vehicle.Vehicle
	BikeAt graph.NodeID
	// Car is an own car. A car docked in a parking space is picked up there,
	// otherwise at CarAt (Origin when empty).
	Car   *vehicle.Vehicle
	CarAt graph.NodeID
}

// Traveler is a person moving through the simulation on a multimodal route.
type Traveler struct {
	id        string
	layers    *Layers
	finder    *Finder
	opts      steering.Options
	log       logrus.FieldLogger
	style     kinematics.DrivingStyle
	overtakes bool
	preferred float64
	mode      ModalChoice

	shoes  *vehicle.Vehicle
	bike   *vehicle.Vehicle
	bikeAt graph.NodeID
	car    *vehicle.Vehicle
	carLot graph.NodeID

	route  *Route
	active steering.Handle
	at     graph.NodeID // last node the traveller stood at
}

// NewTraveler plans cfg's journey over layers. The traveller starts Offside
// and enters its first leg on the first Move.
func NewTraveler(cfg Config, layers *Layers, opts steering.Options) (*Traveler, error) {
	if layers == nil || layers.Env == nil {
		return nil, fault.Configuration("multimodal.NewTraveler", "traveller has no environment")
	}
	g := layers.Env.Graph()
	for _, n := range []graph.NodeID{cfg.Origin, cfg.Goal} {
		if _, err := g.GetNode(n); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "multimodal.NewTraveler", err)
		}
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Mode == "" {
		cfg.Mode = Walking
	}
	if cfg.Style.Headway == 0 {
		cfg.Style = kinematics.NormalStyle()
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	opts.Overtaking = opts.Overtaking || cfg.Overtaking

	t := &Traveler{
		id:        cfg.ID,
		layers:    layers,
		finder:    NewFinder(layers),
		opts:      opts,
		log:       opts.Log.WithField("agent", cfg.ID),
		style:     cfg.Style,
		overtakes: cfg.Overtaking,
		preferred: cfg.PreferredSpeed,
		mode:      cfg.Mode,
		shoes:     vehicle.New(vehicle.KindWalkingShoes, vehicle.Defaults(vehicle.KindWalkingShoes)),
		bike:      cfg.Bike,
		bikeAt:    cfg.BikeAt,
		car:       cfg.Car,
		carLot:    cfg.CarAt,
		at:        cfg.Origin,
	}
	if t.bikeAt == "" {
		t.bikeAt = cfg.Origin
	}
	if t.carLot == "" {
		t.carLot = cfg.Origin
	}

	r, err := t.finder.Find(t, cfg.Origin, cfg.Goal, cfg.Mode)
	if err != nil {
		t.log.WithError(err).WithField("mode", cfg.Mode).Debug("falling back to walking")
		if r, err = t.finder.Find(t, cfg.Origin, cfg.Goal, Walking); err != nil {
			return nil, fault.Wrap(fault.CodeConfiguration, "multimodal.NewTraveler", err)
		}
	}
	t.route = r
	return t, nil
}

func (t *Traveler) ID() string                     { return t.id }
func (t *Traveler) Style() kinematics.DrivingStyle { return t.style }
func (t *Traveler) Overtaking() bool               { return t.overtakes }
func (t *Traveler) Braking() bool                  { return false }

// Notify forwards vehicle messages to the passenger handle.
func (t *Traveler) Notify(m vehicle.Message) {
	ph, ok := t.active.(*steering.PassengerHandle)
	if !ok {
		return
	}
	ph.Observe(m)
	if ph.GoalReached() {
		t.at = m.Node
	}
}

// Route returns the journey.
func (t *Traveler) Route() *Route { return t.route }

// Position returns the last node the traveller stood at.
func (t *Traveler) Position() graph.NodeID { return t.at }

// GoalReached reports whether the journey is complete.
func (t *Traveler) GoalReached() bool { return t.route.GoalReached() }

// Whereabouts is derived from the active handle.
func (t *Traveler) Whereabouts() Whereabouts {
	switch t.active.(type) {
	case nil:
		return Offside
	case *steering.WalkingHandle:
		return Sidewalk
	}
	return InVehicle
}

// Move advances the traveller by one tick: it enters the current leg when
// no handle is active, switches modes at the end of a leg and leaves the
// last mode at the goal.
func (t *Traveler) Move(tick int64) error {
	if t.route.GoalReached() && t.active == nil {
		return nil
	}
	log := t.log.WithField("tick", tick)

	if t.active == nil {
		leg, _ := t.route.Current()
		if !t.enter(leg) && leg.Route.GoalReached() {
			t.route.Next()
		}
	}

	if !t.route.GoalReached() && t.legDone() {
		// The route only moves on once the old vehicle is left behind, so a
		// failed re-route retries the same leave next tick.
		if prev := t.route.Mode(); !t.leave(prev) {
			log.WithField("mode", prev).Debug("cannot leave, re-routing")
			t.reroute(log)
		} else {
			t.route.Next()
			if t.stranded() {
				t.reroute(log)
			} else if leg, _ := t.route.Current(); !t.enter(leg) {
				log.WithField("mode", leg.Mode).Debug("cannot enter, re-routing")
				t.reroute(log)
			}
		}
	}

	if t.active != nil {
		if err := t.active.Move(); err != nil {
			return fmt.Errorf("agent %s %s: %w", t.id, t.route.Mode(), err)
		}
	}

	if t.legDone() && t.route.GoalReached() {
		switch t.Whereabouts() {
		case InVehicle:
			if !t.leave(t.route.Mode()) {
				log.WithField("mode", t.route.Mode()).Debug("cannot leave at the goal, re-routing")
				t.reroute(log)
			}
		case Sidewalk:
			t.leave(Walking)
		}
		if t.GoalReached() {
			log.Info("goal reached")
		}
	}
	return nil
}

// legDone reports whether the active handle finished its leg and records
// where the traveller is now.
func (t *Traveler) legDone() bool {
	if t.active == nil || !t.active.GoalReached() {
		return false
	}
	if _, ok := t.active.(*steering.PassengerHandle); ok {
		if leg, ok := t.route.Current(); ok {
			leg.Route.JumpToGoal()
		}
		return true
	}
	if r := t.active.Route(); r != nil {
		t.at = r.Goal()
	}
	return true
}

// stranded reports whether the current leg starts somewhere other than
// where the traveller got off, as after a line ended early.
func (t *Traveler) stranded() bool {
	leg, ok := t.route.Current()
	return ok && leg.Route.Start() != t.at
}

// reroute plans from the current node to the original goal and continues on
// the new legs. An active handle keeps steering along the first new leg, so
// it never falls back to walking.
func (t *Traveler) reroute(log logrus.FieldLogger) {
	goal := t.route.Goal()
	if t.at == goal {
		return
	}
	find := t.finder.FindOrWalk
	if t.active != nil {
		find = t.finder.Find
	}
	r, err := find(t, t.at, goal, t.mode)
	if err != nil {
		if fault.IsTransient(err) {
			log.WithError(err).Debug("no route yet")
			return
		}
		log.WithError(err).Warn("re-routing failed")
		return
	}
	if leg, ok := t.route.Current(); ok {
		leg.Route.JumpToGoal()
	}
	t.route.AppendAndDeleteTail(r)
	t.route.Next()
	if t.active == nil {
		return
	}
	leg, _ := t.route.Current()
	if err := t.active.SetRoute(leg.Route); err != nil {
		log.WithError(err).Warn("re-routing failed")
	}
}

// riding reports whether v is the vehicle of the active handle.
func (t *Traveler) riding(v *vehicle.Vehicle) bool {
	return t.active != nil && t.active.Vehicle() == v
}

// ridingKind reports whether the active vehicle is of kind k.
func (t *Traveler) ridingKind(k vehicle.Kind) bool {
	return t.active != nil && t.active.Vehicle().Kind == k
}

// carAt is the node the own car is picked up at.
func (t *Traveler) carAt() graph.NodeID {
	if space, ok := t.car.Dock().(*parking.Space); ok {
		return space.Node
	}
	return t.carLot
}

// Log is the per-tick state of a traveller.
type Log struct {
	AgentID     string            `json:"agent_id"`
	Mode        ModalChoice       `json:"mode"`
	Whereabouts Whereabouts       `json:"whereabouts"`
	Node        graph.NodeID      `json:"node"`
	GoalReached bool              `json:"goal_reached"`
	Steering    steering.Snapshot `json:"steering"`
}

// GetLog snapshots the traveller.
func (t *Traveler) GetLog() Log {
	l := Log{
		AgentID:     t.id,
		Mode:        t.route.Mode(),
		Whereabouts: t.Whereabouts(),
		Node:        t.at,
		GoalReached: t.GoalReached(),
		Steering:    steering.Snapshot{EdgeID: steering.NoEdge},
	}
	if t.active != nil {
		l.Steering = t.active.Snapshot()
	}
	return l
}
