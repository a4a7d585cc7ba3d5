package transit

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/environment"
	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// Fleet runs every scheduled service of a simulation.
type Fleet struct {
	services []*SimService
}

// NewFleet places each service in env.
func NewFleet(env *environment.Environment, list []Service, opts steering.Options) (*Fleet, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	f := &Fleet{}
	for _, svc := range list {
		s, err := NewSimService(svc, env, opts)
		if err != nil {
			return nil, fmt.Errorf("creating service %q: %w", svc.ServiceID, err)
		}
		f.services = append(f.services, s)
	}
	return f, nil
}

// Services returns the running services.
func (f *Fleet) Services() []*SimService { return f.services }

// Step advances every service by dt seconds. A failing service does not hold
// back the others; the failures are joined.
func (f *Fleet) Step(dt float64) error {
	var errs []error
	for _, s := range f.services {
		if err := s.Step(dt); err != nil {
			errs = append(errs, fmt.Errorf("service %q: %w", s.ServiceID, err))
		}
	}
	return errors.Join(errs...)
}

// Boardable returns a service of one of kinds standing at node that will
// later stop at goal.
func (f *Fleet) Boardable(node, goal graph.NodeID, kinds ...vehicle.Kind) (*SimService, bool) {
	return lo.Find(f.services, func(s *SimService) bool {
		at, ok := s.At()
		if !ok || at != node || !s.Serves(goal) {
			return false
		}
		return len(kinds) == 0 || lo.Contains(kinds, s.vehicle.Kind)
	})
}

// Stops returns the distinct stop nodes served by services of the given kinds.
func (f *Fleet) Stops(kinds ...vehicle.Kind) []graph.NodeID {
	var stops []graph.NodeID
	for _, s := range f.services {
		if len(kinds) > 0 && !lo.Contains(kinds, s.vehicle.Kind) {
			continue
		}
		for _, r := range s.Route {
			stops = append(stops, r.NodeID)
		}
	}
	return lo.Uniq(stops)
}

// Logs snapshots every service.
func (f *Fleet) Logs() []ServiceLog {
	return lo.Map(f.services, func(s *SimService, _ int) ServiceLog { return s.GetLog() })
}
