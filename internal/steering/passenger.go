package steering

import (
	"sync"

	"github.com/cxd309/mms-engine/internal/fault"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// PassengerHandle is held by a rider. It cannot steer; it only tracks
// whether the vehicle has reached the rider's exit node.
type PassengerHandle struct {
	vehicle   *vehicle.Vehicle
	passenger vehicle.Passenger

	mu       sync.Mutex
	exit     graph.NodeID
	route    *graph.Route
	reached  bool
	terminal bool
	closed   bool
}

// EnterPassenger seats p in v until the vehicle stops at exit.
func EnterPassenger(v *vehicle.Vehicle, p vehicle.Passenger, exit graph.NodeID) (*PassengerHandle, error) {
	if !v.TryEnterPassenger(p) {
		return nil, fault.Transient("steering.EnterPassenger", "no free seat in "+v.ID())
	}
	return &PassengerHandle{vehicle: v, passenger: p, exit: exit}, nil
}

func (h *PassengerHandle) Move() error { return nil }

func (h *PassengerHandle) Vehicle() *vehicle.Vehicle { return h.vehicle }

func (h *PassengerHandle) Route() *graph.Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.route
}

// SetRoute changes the exit node to the goal of r.
func (h *PassengerHandle) SetRoute(r *graph.Route) error {
	if r == nil || r.Len() == 0 {
		return fault.Configuration("steering.SetRoute", "route has no stops")
	}
	h.mu.Lock()
	h.route = r
	h.exit = r.Goal()
	h.reached = false
	h.mu.Unlock()
	return nil
}

// Observe reacts to a vehicle notification. A stop at the exit node or the
// end of the line completes the ride.
func (h *PassengerHandle) Observe(m vehicle.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch m.Kind {
	case vehicle.StopReached:
		if m.Node == h.exit {
			h.reached = true
		}
	case vehicle.TerminalStation:
		h.reached, h.terminal = true, true
	}
}

// Terminal reports whether the vehicle ended its service before the exit.
func (h *PassengerHandle) Terminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal
}

func (h *PassengerHandle) GoalReached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reached
}

func (h *PassengerHandle) Snapshot() Snapshot {
	return Snapshot{Velocity: h.vehicle.Velocity(), Acceleration: h.vehicle.Acceleration(), EdgeID: NoEdge}
}

func (h *PassengerHandle) Leave() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.vehicle.Leave(h.passenger) {
		return false
	}
	h.closed = true
	return true
}
