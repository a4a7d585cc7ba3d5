package vehicle

import (
	"fmt"

	"github.com/cxd309/mms-engine/internal/graph"
)

// Kind names a vehicle variant.
type Kind string

const (
	KindCar          Kind = "car"
	KindBicycle      Kind = "bicycle"
	KindBus          Kind = "bus"
	KindTrain        Kind = "train"
	KindFerry        Kind = "ferry"
	KindTruck        Kind = "truck"
	KindWalkingShoes Kind = "walking-shoes"
)

// ParseKind validates a configured vehicle kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCar, KindBicycle, KindBus, KindTrain, KindFerry, KindTruck, KindWalkingShoes:
		return k, nil
	}
	return "", fmt.Errorf("unknown vehicle kind %q", s)
}

// TurningSpeeds maps a turn class onto the highest speed at which it may be
// taken. Missing classes impose no limit.
type TurningSpeeds map[graph.DirectionType]float64

// Turning speed presets, m/s.
var (
	VehicleTurningSpeeds = TurningSpeeds{
		graph.UpLeft:    5.5,
		graph.UpRight:   5.5,
		graph.Left:      4.1,
		graph.Right:     4.1,
		graph.DownLeft:  2.7,
		graph.DownRight: 2.7,
		graph.Down:      1.38,
	}
	BicycleTurningSpeeds = TurningSpeeds{
		graph.UpLeft:    5,
		graph.UpRight:   5,
		graph.Left:      3.33,
		graph.Right:     3.33,
		graph.DownLeft:  1.667,
		graph.DownRight: 1.667,
		graph.Down:      1.389,
	}
)

// IntersectionSpeed is the crossing speed used when the turn at a node cannot
// be classified.
const IntersectionSpeed = 2.7

// Speed returns the limit for turn class d and whether one applies.
func (t TurningSpeeds) Speed(d graph.DirectionType) (float64, bool) {
	if d == graph.DirectionUnknown {
		return IntersectionSpeed, true
	}
	s, ok := t[d]
	return s, ok
}

// Spec holds the static properties of a vehicle.
type Spec struct {
	MaxSpeed      float64        `yaml:"max_speed" json:"max_speed"`       // m/s
	Acceleration  float64        `yaml:"acceleration" json:"acceleration"` // m/s²
	Deceleration  float64        `yaml:"deceleration" json:"deceleration"` // m/s², positive
	Capacity      int            `yaml:"capacity" json:"capacity"`         // passengers, driver excluded
	Length        float64        `yaml:"length" json:"length"`             // m
	TurningSpeeds TurningSpeeds  `yaml:"-" json:"-"`
	TrafficCode   string         `yaml:"traffic_code" json:"traffic_code"`
	Privileged    bool           `yaml:"privileged" json:"privileged"`
	Collision     bool           `yaml:"collision" json:"collision"`
	Modality      graph.Modality `yaml:"modality" json:"modality"`
}

// Base default values.
const (
	DefaultMaxSpeed    = 13.89
	DefaultCapacity    = 1
	DefaultTrafficCode = "german"
)

// Defaults returns the preset spec of kind k.
func Defaults(k Kind) Spec {
	s := Spec{
		MaxSpeed:      DefaultMaxSpeed,
		Acceleration:  0.73,
		Deceleration:  1.67,
		Capacity:      DefaultCapacity,
		Length:        4.5,
		TurningSpeeds: VehicleTurningSpeeds,
		TrafficCode:   DefaultTrafficCode,
		Collision:     true,
		Modality:      graph.ModalityRoad,
	}
	switch k {
	case KindCar:
		s.Capacity = 4
	case KindBicycle:
		s.MaxSpeed, s.Length, s.Capacity = 5.5, 1.8, 0
		s.Acceleration, s.Deceleration = 1.0, 3.0
		s.TurningSpeeds = BicycleTurningSpeeds
		s.Modality = graph.ModalityCycling
	case KindBus:
		s.Length, s.Capacity = 12, 70
		s.Acceleration, s.Deceleration = 1.0, 1.2
	case KindTruck:
		s.MaxSpeed, s.Length = 11.11, 10
		s.Acceleration, s.Deceleration = 0.5, 1.5
	case KindTrain:
		s.MaxSpeed, s.Length, s.Capacity = 22.22, 60, 300
		s.Acceleration, s.Deceleration = 0.7, 1.0
		s.Modality = graph.ModalityRail
	case KindFerry:
		s.MaxSpeed, s.Length, s.Capacity = 8, 30, 200
		s.Acceleration, s.Deceleration = 0.3, 0.5
		s.Modality = graph.ModalityShip
	case KindWalkingShoes:
		s.MaxSpeed, s.Length, s.Capacity = 1.34, 0.5, 0
		s.Acceleration, s.Deceleration = 1.0, 1.0
		s.TurningSpeeds = nil
		s.Collision = false
		s.Modality = graph.ModalityWalking
	}
	return s
}
