package rental

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// OccupancyFeed reports the externally observed vehicle count of a station.
type OccupancyFeed interface {
	LatestOccupancy(ctx context.Context, station string) (count int, ok bool, err error)
}

// Layer holds every rental station of one vehicle kind.
type Layer struct {
	Kind     vehicle.Kind
	stations []*Station
	log      logrus.FieldLogger
}

// NewLayer groups stations into a layer.
func NewLayer(kind vehicle.Kind, log logrus.FieldLogger, stations ...*Station) *Layer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Layer{Kind: kind, stations: stations, log: log}
}

// LoadStations reads a GeoJSON FeatureCollection of station points. Each
// feature may carry a "name" and an "amount" of vehicles to start with.
// Stations are snapped onto the nearest node usable by the kind's modality
// and filled through spawn.
func LoadStations(data []byte, g *graph.Graph, kind vehicle.Kind, spawn Spawner, log logrus.FieldLogger) (*Layer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("rental stations: %w", err)
	}
	l := NewLayer(kind, log)
	modality := vehicle.Defaults(kind).Modality
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("rental station %d: geometry %s is not a point", i, f.Geometry.GeoJSONType())
		}
		node, err := g.NearestNode(p, modality)
		if err != nil {
			return nil, fmt.Errorf("rental station %d: %w", i, err)
		}
		name := f.Properties.MustString("name", fmt.Sprintf("station-%d", i))
		st := NewStation(uuid.NewString(), name, p, node.ID, kind, spawn)
		amount := f.Properties.MustInt("amount", StandardAmount)
		st.SetLastUpdateCount(amount)
		st.Synchronize()
		l.stations = append(l.stations, st)
	}
	l.log.WithFields(logrus.Fields{"kind": kind, "count": len(l.stations)}).Info("rental stations loaded")
	return l, nil
}

// Stations returns every station of the layer.
func (l *Layer) Stations() []*Station { return l.stations }

// Nearest returns the station closest to p accepted by pred; a nil pred
// accepts every station.
func (l *Layer) Nearest(p orb.Point, pred func(*Station) bool) (*Station, bool) {
	candidates := l.stations
	if pred != nil {
		candidates = lo.Filter(candidates, func(st *Station, _ int) bool { return pred(st) })
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return lo.MinBy(candidates, func(a, b *Station) bool {
		return planar.DistanceSquared(p, a.Loc) < planar.DistanceSquared(p, b.Loc)
	}), true
}

// HasVehicle accepts stations with at least one parked vehicle.
func HasVehicle(st *Station) bool { return !st.Empty() }

// Refresh pulls the latest count of every station from feed and
// synchronises the pools. Stations without a record keep their count.
func (l *Layer) Refresh(ctx context.Context, feed OccupancyFeed) error {
	for _, st := range l.stations {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok, err := feed.LatestOccupancy(ctx, st.Name)
		if err != nil {
			return fmt.Errorf("station %s: %w", st.Name, err)
		}
		if !ok {
			continue
		}
		st.SetLastUpdateCount(n)
		l.SynchronizeStation(st)
	}
	return nil
}

// Synchronize reconciles every station against its last reported count.
func (l *Layer) Synchronize() {
	for _, st := range l.stations {
		l.SynchronizeStation(st)
	}
}

// SynchronizeStation reconciles one station and logs any correction.
func (l *Layer) SynchronizeStation(st *Station) {
	st.Synchronize()
	if d := st.SyncDelta(); d != 0 {
		l.log.WithFields(logrus.Fields{"station": st.Name, "delta": d}).Debug("rental station synchronised")
	}
}
