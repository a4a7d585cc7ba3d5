package trafficlight

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/mms-engine/internal/graph"
)

func crossing(t *testing.T) *graph.Graph {
	t.Helper()
	data := graph.GraphData{Nodes: []graph.Node{
		{ID: "C", Loc: orb.Point{0, 0}},
		{ID: "N", Loc: orb.Point{0, 100}},
		{ID: "E", Loc: orb.Point{100, 0}},
		{ID: "S", Loc: orb.Point{0, -100}},
		{ID: "W", Loc: orb.Point{-100, 0}},
	}}
	for _, arm := range []string{"N", "E", "S", "W"} {
		data.Edges = append(data.Edges,
			graph.Edge{ID: arm + "C", U: arm, V: "C"},
			graph.Edge{ID: "C" + arm, U: "C", V: arm},
		)
	}
	g, err := graph.NewGraph(data)
	require.NoError(t, err)
	return g
}

func TestGeneratedScheduleCyclesThroughApproaches(t *testing.T) {
	g := crossing(t)
	c, err := NewController(g, "C")
	require.NoError(t, err)
	assert.Equal(t, 4*(GreenDuration+YellowDuration), c.CycleLength())

	first := g.Incoming("C")[0].ID
	second := g.Incoming("C")[1].ID
	out := "CS"

	c.Step(0)
	assert.Equal(t, PhaseGreen, c.Phase(first, out))
	assert.Equal(t, PhaseRed, c.Phase(second, out))
	assert.True(t, c.AccessEdge(first, out))
	assert.False(t, c.AccessEdge(second, out))

	c.Step(GreenDuration)
	assert.Equal(t, PhaseYellow, c.Phase(first, out))

	c.Step(GreenDuration + YellowDuration)
	assert.Equal(t, PhaseRed, c.Phase(first, out))

	c.Step(int64(c.CycleLength()))
	assert.Equal(t, PhaseGreen, c.Phase(first, out))
}

func TestUTurnIsUnsignalised(t *testing.T) {
	g := crossing(t)
	c, err := NewController(g, "C")
	require.NoError(t, err)
	c.Step(0)
	assert.Equal(t, PhaseNone, c.Phase("NC", "CN"))
	assert.Equal(t, PhaseNone, c.Phase("NC", "nowhere"))
}

func TestRecordedScheduleReplaysCodes(t *testing.T) {
	g := crossing(t)
	c, err := NewRecordedController(g, "C", []int{1, 1, 3, 2})
	require.NoError(t, err)

	want := []Phase{PhaseRed, PhaseRed, PhaseGreen, PhaseYellow, PhaseRed}
	for tick, p := range want {
		c.Step(int64(tick))
		assert.Equal(t, p, c.Phase("SC", "CN"), "tick %d", tick)
	}

	_, err = NewRecordedController(g, "C", []int{1, 7})
	assert.Error(t, err)
}

func TestLayerSnapsLocationsToNodes(t *testing.T) {
	g := crossing(t)
	log, hook := test.NewNullLogger()
	far := orb.Point{30, 0}
	l, err := NewLayer(g, []LightSpec{{Loc: &far}}, log)
	require.NoError(t, err)

	_, ok := l.Controller("C")
	assert.True(t, ok)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)

	l.Step(0)
	_, signalised := l.Phase("N", "NC", "CN")
	assert.False(t, signalised)
}

func TestPhaseText(t *testing.T) {
	for _, p := range []Phase{PhaseNone, PhaseRed, PhaseYellow, PhaseGreen} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var back Phase
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, p, back)
	}
	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("blue")))
}
