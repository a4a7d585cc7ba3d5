package transit

import (
	"encoding/json"
	"fmt"

	"github.com/cxd309/mms-engine/internal/kinematics"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// VehicleSpec describes the vehicle a service runs with. Zero fields keep
// the preset of Kind, and a missing kinematics block selects the default
// model for the kind.
type VehicleSpec struct {
	Name     string                 `json:"name"`
	Kind     vehicle.Kind           `json:"kind"`
	Length   float64                `json:"length,omitempty"`    // metres
	Capacity int                    `json:"capacity,omitempty"`  // passengers
	MaxSpeed float64                `json:"max_speed,omitempty"` // m/s
	Kinem    kinematics.Accelerator `json:"-"`                   // set by UnmarshalJSON
}

// kinematicsDisc is the minimum JSON structure needed to read the model discriminator.
type kinematicsDisc struct {
	Model string `json:"model"`
}

type vehicleSpecJSON struct {
	Name     string          `json:"name"`
	Kind     vehicle.Kind    `json:"kind"`
	Length   float64         `json:"length"`
	Capacity int             `json:"capacity"`
	MaxSpeed float64         `json:"max_speed"`
	Kinem    json.RawMessage `json:"kinematics"`
}

// UnmarshalJSON implements json.Unmarshaler for VehicleSpec.
// An optional "kinematics" object selects the longitudinal model through its
// "model" discriminator; the rest of the object is forwarded to that model.
//
// Supported models:
//   - "constant": fixed a_acc / a_dcc rates.
//   - "idm": Intelligent Driver Model parameters.
//   - "wiedemann": bicycle rider parameters.
func (v *VehicleSpec) UnmarshalJSON(data []byte) error {
	var aux vehicleSpecJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Name, v.Length, v.Capacity, v.MaxSpeed = aux.Name, aux.Length, aux.Capacity, aux.MaxSpeed
	v.Kind = aux.Kind
	if v.Kind == "" {
		v.Kind = vehicle.KindBus
	}
	if _, err := vehicle.ParseKind(string(v.Kind)); err != nil {
		return fmt.Errorf("vehicle %q: %w", v.Name, err)
	}
	if len(aux.Kinem) == 0 {
		return nil
	}

	var disc kinematicsDisc
	if err := json.Unmarshal(aux.Kinem, &disc); err != nil {
		return fmt.Errorf("vehicle %q: reading kinematics model discriminator: %w", v.Name, err)
	}

	switch disc.Model {
	case kinematics.ConstantModelName:
		var k kinematics.ConstantAcceleration
		if err := json.Unmarshal(aux.Kinem, &k); err != nil {
			return fmt.Errorf("vehicle %q: parsing constant kinematics: %w", v.Name, err)
		}
		v.Kinem = k
	case kinematics.IntelligentDriverModelName:
		k := kinematics.NewIntelligentDriver(v.MaxSpeed)
		if err := json.Unmarshal(aux.Kinem, &k); err != nil {
			return fmt.Errorf("vehicle %q: parsing idm kinematics: %w", v.Name, err)
		}
		v.Kinem = k
	case kinematics.WiedemannModelName:
		k := kinematics.NewWiedemann(v.MaxSpeed, kinematics.NormalStyle())
		if err := json.Unmarshal(aux.Kinem, &k); err != nil {
			return fmt.Errorf("vehicle %q: parsing wiedemann kinematics: %w", v.Name, err)
		}
		v.Kinem = k
	default:
		return fmt.Errorf("vehicle %q: unknown kinematics model %q", v.Name, disc.Model)
	}
	return nil
}

// spec merges the overrides onto the kind's preset.
func (v VehicleSpec) spec() vehicle.Spec {
	s := vehicle.Defaults(v.Kind)
	if v.Length > 0 {
		s.Length = v.Length
	}
	if v.Capacity > 0 {
		s.Capacity = v.Capacity
	}
	if v.MaxSpeed > 0 {
		s.MaxSpeed = v.MaxSpeed
	}
	return s
}
