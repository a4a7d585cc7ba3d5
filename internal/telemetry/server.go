// Package telemetry serves the live state of a running simulation over HTTP:
// the latest log row, rental station occupancy and per-traveller speed
// statistics.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/engine"
	"github.com/cxd309/mms-engine/internal/multimodal"
)

// AgentStats summarises the speeds a traveller moved at.
type AgentStats struct {
	AgentID     string  `json:"agent_id"`
	Samples     int     `json:"samples"`
	MeanSpeed   float64 `json:"mean_speed"`   // m/s
	StdDevSpeed float64 `json:"stddev_speed"` // m/s
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server keeps the latest row handed to Observe and serves it.
type Server struct {
	log    logrus.FieldLogger
	router chi.Router

	mu     sync.RWMutex
	last   *engine.SimulationLogRow
	speeds map[string]*Welford
}

// NewServer returns a server allowing browser requests from origins.
func NewServer(log logrus.FieldLogger, origins ...string) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &Server{log: log, speeds: make(map[string]*Welford)}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Get("/health", s.health)
	r.Get("/snapshot", s.snapshot)
	r.Get("/stations", s.stations)
	r.Get("/agents", s.agents)
	r.Get("/agents/{agentID}", s.agent)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Observe records row. It is meant to be passed as engine.Options.Observe.
func (s *Server) Observe(row engine.SimulationLogRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &row
	for _, l := range row.TravelerLogs {
		if l.Whereabouts == multimodal.Offside {
			continue
		}
		w, ok := s.speeds[l.AgentID]
		if !ok {
			w = &Welford{}
			s.speeds[l.AgentID] = w
		}
		w.Update(l.Steering.Velocity)
	}
}

// Stats returns the speed statistics of every traveller seen moving, by ID.
func (s *Server) Stats() []AgentStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.speeds)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) AgentStats { return s.statsOf(id) })
}

func (s *Server) statsOf(id string) AgentStats {
	w := s.speeds[id]
	return AgentStats{AgentID: id, Samples: w.Count, MeanSpeed: w.Mean, StdDevSpeed: w.StdDev()}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			s.log.WithError(err).Warn("telemetry shutdown failed")
		}
	}()
	s.log.WithField("addr", addr).Info("telemetry server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	body := map[string]any{"status": "ok", "timestamp": time.Now().UTC()}
	if s.last != nil {
		body["tick"] = s.last.Tick
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no tick simulated yet"})
		return
	}
	writeJSON(w, http.StatusOK, s.last)
}

func (s *Server) stations(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []engine.StationLog{}
	if s.last != nil && s.last.Stations != nil {
		out = s.last.Stations
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) agents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Server) agent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "agentID")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.speeds[id]; !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown agent " + id})
		return
	}
	writeJSON(w, http.StatusOK, s.statsOf(id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
