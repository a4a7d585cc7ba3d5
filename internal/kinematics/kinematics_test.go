package kinematics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urbanLimit = 50 / 3.6

func TestIntelligentDriverConvergesWithoutOvershoot(t *testing.T) {
	cases := []struct {
		name            string
		limit, maxSpeed float64
	}{
		{"limit below max speed", urbanLimit, 20},
		{"max speed below limit", 20, 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := NewIntelligentDriver(c.maxSpeed)
			want := min(c.limit, c.maxSpeed)
			v := 0.0
			for tick := 0; tick < 300; tick++ {
				v += m.SpeedDelta(v, c.limit, FreeDrivingClearance, c.limit, 0)
				require.LessOrEqual(t, v, want+1e-9, "tick %d", tick)
				require.GreaterOrEqual(t, v, 0.0)
			}
			assert.InDelta(t, want, v, 0.2)
		})
	}
}

func TestIntelligentDriverNoRearEndWithinStoppingDistance(t *testing.T) {
	m := NewIntelligentDriver(20)
	for v := 1.0; v <= 15; v += 0.5 {
		stop := StoppingDistance(v)
		for gap := 0.05; gap <= stop; gap += 0.05 {
			next := v + m.SpeedDelta(v, urbanLimit, gap, 0, 0)
			assert.LessOrEqual(t, next, 1e-9, "v=%.2f gap=%.2f", v, gap)
		}
	}
}

func TestIntelligentDriverNeverPassesStationaryObstacle(t *testing.T) {
	m := NewIntelligentDriver(urbanLimit)
	v, gap := urbanLimit, 120.0
	for tick := 0; tick < 200; tick++ {
		v += m.SpeedDelta(v, urbanLimit, gap, 0, 0)
		gap -= v
		require.GreaterOrEqual(t, gap, -1e-9, "tick %d", tick)
	}
	assert.Less(t, v, 0.1)
}

func TestIntelligentDriverNonPositiveGapStops(t *testing.T) {
	m := NewIntelligentDriver(urbanLimit)
	assert.Equal(t, -7.0, m.SpeedDelta(7, urbanLimit, 0, 3, 0))
	assert.Equal(t, -7.0, m.SpeedDelta(7, urbanLimit, -2, 3, 0))
}

func TestIntelligentDriverFollowsSlowerLeader(t *testing.T) {
	m := NewIntelligentDriver(urbanLimit)
	delta := m.SpeedDelta(12, urbanLimit, 15, 4, 0)
	assert.Less(t, delta, 0.0)
}

func TestBoundClampsIntoRange(t *testing.T) {
	assert.Equal(t, -3.0, Bound(3, -10, 10, 10, 100, 5))
	assert.InDelta(t, 2.0, Bound(8, 5, 10, 12, 100, 5), 1e-9)
	assert.InDelta(t, 1.0, Bound(8, 5, 12, 9, 100, 5), 1e-9)
	// within one tick a stationary obstacle caps the next speed at the gap
	assert.InDelta(t, -2.0, Bound(8, 0, 12, 12, 6, 0), 1e-9)
	// inside the emergency stopping distance the vehicle stops at once
	assert.Equal(t, -8.0, Bound(8, 0, 12, 12, 4, 0))
}

func TestConstantAccelerationStopsBeforeObstacle(t *testing.T) {
	m := ConstantAcceleration{Traction: 1, Braking: 1, MaxSpeed: 20}
	v, gap := 20.0, 500.0
	for tick := 0; tick < 400; tick++ {
		v += m.SpeedDelta(v, 25, gap, 0, 0)
		require.GreaterOrEqual(t, v, 0.0)
		gap -= v
		require.GreaterOrEqual(t, gap, -1e-9, "tick %d", tick)
	}
	assert.Zero(t, v)
	assert.Less(t, gap, 1.0)
}

func TestConstantAccelerationStoppingGap(t *testing.T) {
	m := ConstantAcceleration{Traction: 1, Braking: 2, MaxSpeed: 20}
	assert.InDelta(t, 26.0, m.stoppingGap(10, 6), 1e-9)
	assert.Equal(t, 5.0, m.stoppingGap(5, 6))
	assert.True(t, math.IsInf(ConstantAcceleration{}.stoppingGap(1, 0), 1))

	// far from a slower leader it keeps accelerating, inside the gap it brakes
	assert.InDelta(t, 1.0, m.SpeedDelta(10, 20, 100, 6, 0), 1e-9)
	assert.InDelta(t, -2.0, m.SpeedDelta(10, 20, 20, 6, 0), 1e-9)
}

func TestWiedemannFreeRideStaysBelowLimit(t *testing.T) {
	m := NewWiedemann(5.5, NormalStyle())
	v := 0.0
	for tick := 0; tick < 200; tick++ {
		v += m.SpeedDelta(v, urbanLimit, FreeDrivingClearance, urbanLimit, 0)
		require.LessOrEqual(t, v, 5.5+1e-9)
	}
	assert.Greater(t, v, 4.5)
}

func TestWiedemannBrakesForStationaryObstacle(t *testing.T) {
	m := NewWiedemann(5.5, NormalStyle())
	v, gap := 5.0, 40.0
	for tick := 0; tick < 100; tick++ {
		v += m.SpeedDelta(v, urbanLimit, gap, 0, 0)
		require.GreaterOrEqual(t, v, 0.0)
		gap -= v
		require.GreaterOrEqual(t, gap, -1e-9, "tick %d", tick)
	}
}

func TestSampleStyleRanges(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		a := SampleStyle(Aggressive, rng)
		assert.GreaterOrEqual(t, a.Headway, 0.75)
		assert.LessOrEqual(t, a.Headway, 1.5)
		assert.GreaterOrEqual(t, a.DriverRand, 2.0/3)
		assert.GreaterOrEqual(t, a.EnteringFollowingThreshold, -20.0)
		assert.LessOrEqual(t, a.EnteringFollowingThreshold, -10.0)

		d := SampleStyle(Defensive, rng)
		assert.GreaterOrEqual(t, d.Headway, 1.5)
		assert.LessOrEqual(t, d.Headway, 2.25)
		assert.LessOrEqual(t, d.DriverRand, 1.0/3)
		assert.LessOrEqual(t, d.OscillationAcceleration, 0.2)
	}
	n := SampleStyle(Normal, rng)
	assert.Equal(t, 1.5, n.Headway)
	assert.Equal(t, 2.0, n.FollowingVariation)
}

func TestParseDriverType(t *testing.T) {
	dt, err := ParseDriverType("")
	require.NoError(t, err)
	assert.Equal(t, Normal, dt)
	_, err = ParseDriverType("reckless")
	assert.Error(t, err)
}

func TestWalkingSpeedBands(t *testing.T) {
	assert.Equal(t, 1.34, WalkingSpeed(1.34, 0))
	assert.InDelta(t, 1.34*0.84, WalkingSpeed(1.34, 1.0), 1e-9)
	assert.InDelta(t, 1.34*0.12, WalkingSpeed(1.34, 5), 1e-9)
	assert.InDelta(t, 3/(2.1*4), PedestrianDensity(3, 4), 1e-9)
}

func TestBrakingDistanceProfile(t *testing.T) {
	assert.InDelta(t, 50, BrakingDistance(50/3.6), 1e-9)
}
