package parking

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

func TestSpaceCapacity(t *testing.T) {
	s := NewSpace("p", orb.Point{}, "A", 1)
	a := vehicle.New(vehicle.KindCar, vehicle.Defaults(vehicle.KindCar))
	b := vehicle.New(vehicle.KindCar, vehicle.Defaults(vehicle.KindCar))

	require.True(t, s.Enter(a))
	assert.Equal(t, "p", a.Dock().DockID())
	assert.False(t, s.Enter(b))
	assert.False(t, s.HasCapacity())

	assert.True(t, s.Leave(a))
	assert.Nil(t, a.Dock())
	assert.False(t, s.Leave(a))
	assert.True(t, s.Enter(b))
}

func TestLoadAndNearest(t *testing.T) {
	g, err := graph.NewGraph(graph.GraphData{
		Nodes: []graph.Node{{ID: "A", Loc: orb.Point{0, 0}}, {ID: "B", Loc: orb.Point{100, 0}}},
		Edges: []graph.Edge{{ID: "AB", U: "A", V: "B"}},
	})
	require.NoError(t, err)
	l, err := LoadSpaces([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,0]},"properties":{"capacity":1}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[99,0]},"properties":{"capacity":5}}]}`), g)
	require.NoError(t, err)
	require.Len(t, l.Spaces(), 2)
	assert.Equal(t, "A", l.Spaces()[0].Node)
	assert.Equal(t, 5, l.Spaces()[1].Capacity)

	near := l.Spaces()[0]
	require.True(t, near.Enter(vehicle.New(vehicle.KindCar, vehicle.Defaults(vehicle.KindCar))))
	s, ok := l.Nearest(orb.Point{0, 0}, WithCapacity)
	require.True(t, ok)
	assert.Equal(t, "B", s.Node)

	_, ok = NewLayer().Nearest(orb.Point{}, nil)
	assert.False(t, ok)
}
