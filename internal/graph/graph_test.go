package graph

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crossing: centre C with arms N, E, S, W at 100 m, two-way.
func crossing(t *testing.T) *Graph {
	t.Helper()
	data := GraphData{Nodes: []Node{
		{ID: "C", Loc: orb.Point{0, 0}},
		{ID: "N", Loc: orb.Point{0, 100}},
		{ID: "E", Loc: orb.Point{100, 0}},
		{ID: "S", Loc: orb.Point{0, -100}},
		{ID: "W", Loc: orb.Point{-100, 0}},
	}}
	for _, arm := range []string{"N", "E", "S", "W"} {
		data.Edges = append(data.Edges,
			Edge{ID: arm + "C", U: arm, V: "C", Lanes: 2},
			Edge{ID: "C" + arm, U: "C", V: arm, Lanes: 2},
		)
	}
	g, err := NewGraph(data)
	require.NoError(t, err)
	return g
}

func TestNewGraphDerivesEdgeDefaults(t *testing.T) {
	g := crossing(t)
	e, err := g.GetEdgeByID("NC")
	require.NoError(t, err)
	assert.InDelta(t, 100, e.Length, 1e-9)
	assert.Equal(t, 2, e.Lanes)
	r, ok := e.LaneRange(ModalityCycling)
	assert.True(t, ok)
	assert.Equal(t, LaneRange{First: 0, Last: 1}, r)
}

func TestNewGraphRejectsBadEdges(t *testing.T) {
	_, err := NewGraph(GraphData{
		Nodes: []Node{{ID: "A"}},
		Edges: []Edge{{ID: "AB", U: "A", V: "B"}},
	})
	assert.Error(t, err)

	_, err = NewGraph(GraphData{
		Nodes: []Node{{ID: "A"}, {ID: "B", Loc: orb.Point{10, 0}}},
		Edges: []Edge{{ID: "AB", U: "A", V: "B", Lanes: 1,
			Modalities: map[Modality]LaneRange{ModalityRoad: {First: 0, Last: 3}}}},
	})
	assert.Error(t, err)
}

func TestTurnClassification(t *testing.T) {
	g := crossing(t)
	cases := []struct {
		from, to string
		want     DirectionType
	}{
		{"SC", "CN", Up},
		{"SC", "CE", Right},
		{"SC", "CW", Left},
		{"SC", "CS", Down},
		{"WC", "CE", Up},
		{"WC", "CS", Right},
	}
	for _, c := range cases {
		from, _ := g.GetEdgeByID(c.from)
		to, _ := g.GetEdgeByID(c.to)
		assert.Equal(t, c.want, Turn(from, to), "%s -> %s", c.from, c.to)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("down-right")
	require.NoError(t, err)
	assert.Equal(t, DownRight, d)
	assert.Equal(t, "down-right", d.String())
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestClassifyAngleBands(t *testing.T) {
	assert.Equal(t, UpRight, ClassifyAngle(45))
	assert.Equal(t, UpLeft, ClassifyAngle(-45))
	assert.Equal(t, DownRight, ClassifyAngle(135))
	assert.Equal(t, DownLeft, ClassifyAngle(-135))
	assert.Equal(t, Down, ClassifyAngle(180))
	assert.InDelta(t, -90, RelativeAngle(350, 260), 1e-9)
}

func TestShortestPathHonoursFilter(t *testing.T) {
	g := crossing(t)
	p, err := g.ShortestPath("S", "N", nil)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"S", "C", "N"}, p.Nodes)
	assert.InDelta(t, 200, p.Length, 1e-9)

	_, err = g.ShortestPath("S", "N", func(e *Edge) bool { return e.ID != "CN" })
	assert.Error(t, err)
}

func TestNearestNode(t *testing.T) {
	g := crossing(t)
	n, err := g.NearestNode(orb.Point{90, 5}, ModalityRoad)
	require.NoError(t, err)
	assert.Equal(t, "E", n.ID)
}

func TestRouteProgress(t *testing.T) {
	g := crossing(t)
	p, err := g.ShortestPath("S", "N", nil)
	require.NoError(t, err)
	r, err := RouteFromPath(p, ModalityRoad)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "N", r.Goal())
	assert.InDelta(t, 200, r.RemainingDistanceToGoal(), 1e-9)

	stop, offset := r.Peek(150)
	assert.Equal(t, "CN", stop.Edge.ID)
	assert.InDelta(t, 50, offset, 1e-9)
	assert.Equal(t, "SC", r.Current().Edge.ID)

	assert.InDelta(t, 150, r.Advance(150), 1e-9)
	assert.Equal(t, "CN", r.Current().Edge.ID)
	assert.InDelta(t, 50, r.RemainingOnEdge(), 1e-9)
	assert.False(t, r.GoalReached())

	assert.InDelta(t, 50, r.Advance(80), 1e-9)
	assert.True(t, r.GoalReached())
	assert.InDelta(t, 0, r.RemainingDistanceToGoal(), 1e-9)
}

func TestNewRouteRejectsGaps(t *testing.T) {
	g := crossing(t)
	a, _ := g.GetEdgeByID("SC")
	b, _ := g.GetEdgeByID("NC")
	_, err := NewRoute([]*Stop{{Edge: a}, {Edge: b}}, 0)
	assert.ErrorIs(t, err, ErrDiscontinuous)
}
