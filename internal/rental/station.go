// Package rental manages the stations rental bicycles and cars are picked up
// from and returned to.
package rental

import (
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// StandardAmount is the number of vehicles a station starts with when its
// feature does not say otherwise.
const StandardAmount = 10

// Spawner creates a fresh vehicle for st during synchronisation.
type Spawner func(st *Station) *vehicle.Vehicle

// Station is a concurrent pool of parked rental vehicles keyed by vehicle ID.
type Station struct {
	ID    string
	Name  string
	Loc   orb.Point
	Node  graph.NodeID
	Kind  vehicle.Kind
	spawn Spawner

	pool sync.Map // vehicle ID -> *vehicle.Vehicle

	rents           atomic.Int64
	returns         atomic.Int64
	lastUpdateCount atomic.Int64
	syncDelta       atomic.Int64
}

// NewStation creates an empty station. spawn may be nil, in which case
// synchronisation can only remove vehicles.
func NewStation(id, name string, loc orb.Point, node graph.NodeID, kind vehicle.Kind, spawn Spawner) *Station {
	return &Station{ID: id, Name: name, Loc: loc, Node: node, Kind: kind, spawn: spawn}
}

func (st *Station) DockID() string { return st.ID }

// Count returns the number of vehicles parked.
func (st *Station) Count() int {
	n := 0
	st.pool.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Empty reports whether no vehicle is available.
func (st *Station) Empty() bool {
	empty := true
	st.pool.Range(func(_, _ any) bool {
		empty = false
		return false
	})
	return empty
}

// Vehicles returns the parked vehicles.
func (st *Station) Vehicles() []*vehicle.Vehicle {
	var out []*vehicle.Vehicle
	st.pool.Range(func(_, v any) bool {
		out = append(out, v.(*vehicle.Vehicle))
		return true
	})
	return out
}

// Enter returns v to the station. It fails if v is already parked here.
func (st *Station) Enter(v *vehicle.Vehicle) bool {
	if !st.park(v) {
		return false
	}
	st.returns.Add(1)
	return true
}

func (st *Station) park(v *vehicle.Vehicle) bool {
	if _, loaded := st.pool.LoadOrStore(v.ID(), v); loaded {
		return false
	}
	v.SetDock(st)
	return true
}

// Leave takes v out of the station and reports whether it was parked here.
// The dock reference is cleared and a rent counted either way.
func (st *Station) Leave(v *vehicle.Vehicle) bool {
	v.SetDock(nil)
	st.rents.Add(1)
	_, ok := st.pool.LoadAndDelete(v.ID())
	return ok
}

// RentAny takes any parked vehicle. A vehicle taken concurrently by someone
// else is skipped; ok is false once the station is empty.
func (st *Station) RentAny() (*vehicle.Vehicle, bool) {
	v, ok := st.take()
	if ok {
		st.rents.Add(1)
	}
	return v, ok
}

func (st *Station) take() (*vehicle.Vehicle, bool) {
	for {
		var key any
		st.pool.Range(func(k, _ any) bool {
			key = k
			return false
		})
		if key == nil {
			return nil, false
		}
		if v, ok := st.pool.LoadAndDelete(key); ok {
			veh := v.(*vehicle.Vehicle)
			veh.SetDock(nil)
			return veh, true
		}
	}
}

// SetLastUpdateCount records the count last reported by the occupancy feed.
func (st *Station) SetLastUpdateCount(n int) { st.lastUpdateCount.Store(int64(n)) }

// Synchronize reconciles the pool with the last reported count, spawning
// missing vehicles or evicting surplus ones.
func (st *Station) Synchronize() {
	target := int(st.lastUpdateCount.Load())
	prev := st.Count()
	for n := prev; n < target && st.spawn != nil; n++ {
		if v := st.spawn(st); v != nil {
			st.park(v)
		}
	}
	for n := st.Count(); n > target; n-- {
		if _, ok := st.take(); !ok {
			break
		}
	}
	st.syncDelta.Store(int64(target - prev))
}

func (st *Station) Rents() int64           { return st.rents.Load() }
func (st *Station) Returns() int64         { return st.returns.Load() }
func (st *Station) LastUpdateCount() int64 { return st.lastUpdateCount.Load() }
func (st *Station) SyncDelta() int64       { return st.syncDelta.Load() }
