package kinematics

// Pedestrian defaults.
const (
	PreferredWalkingSpeed = 1.34 // m/s
	WalkingPerception     = 4.0  // m
	walkwayWidth          = 2.1  // m
)

// weidmannBands maps upper density bounds (pedestrians per m²) onto the share
// of the preferred speed that remains possible.
var weidmannBands = []struct {
	density, factor float64
}{
	{0.38, 1.0},
	{0.53, 0.99},
	{0.68, 0.96},
	{0.88, 0.91},
	{1.25, 0.84},
	{1.75, 0.69},
	{3.95, 0.52},
}

// PedestrianDensity converts a head count within perception metres ahead into
// pedestrians per square metre.
func PedestrianDensity(count int, perception float64) float64 {
	if count <= 0 || perception <= 0 {
		return 0
	}
	return float64(count) / (walkwayWidth * perception)
}

// WalkingSpeed returns the speed possible at the given density according to
// Weidmann's level-of-service bands.
func WalkingSpeed(preferred, density float64) float64 {
	for _, b := range weidmannBands {
		if density < b.density {
			return preferred * b.factor
		}
	}
	return preferred * 0.12
}
