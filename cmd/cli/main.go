// Command mms-engine reads a SimulationInput JSON from a file argument (or stdin),
// runs the simulation, and writes the SimulationLog JSON to stdout.
//
//	mms-engine [-config mms.yaml] [-feed feed.db] [-record] [-serve] [input.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cxd309/mms-engine/internal/config"
	"github.com/cxd309/mms-engine/internal/engine"
	"github.com/cxd309/mms-engine/internal/store"
	"github.com/cxd309/mms-engine/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		feedPath   = flag.String("feed", "", "SQLite occupancy feed, overrides feed_db")
		record     = flag.Bool("record", false, "record station occupancy into the feed instead of reading it")
		serve      = flag.Bool("serve", false, "serve live telemetry on http_addr while running")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *feedPath != "" {
		cfg.FeedDB = *feedPath
	}
	log := cfg.Logger()
	log.SetOutput(os.Stderr)

	if err := run(cfg, log, flag.Arg(0), *record, *serve); err != nil {
		log.WithError(err).Error("simulation failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logrus.Logger, inputPath string, record, serve bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		data []byte
		err  error
	)
	if inputPath != "" {
		data, err = os.ReadFile(inputPath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	var input engine.SimulationInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("invalid input JSON: %w", err)
	}

	opts := engineOptions(cfg, log)
	var observers []func(engine.SimulationLogRow)

	if cfg.FeedDB != "" {
		db, err := store.Connect(ctx, cfg.FeedDB, log)
		if err != nil {
			return err
		}
		defer db.Close()
		if record {
			observers = append(observers, recorder(ctx, db, log))
		} else {
			opts.Feed = db
		}
	}

	if serve {
		srv := telemetry.NewServer(log)
		observers = append(observers, srv.Observe)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				log.WithError(err).Error("telemetry server failed")
			}
		}()
	}
	if len(observers) > 0 {
		opts.Observe = func(row engine.SimulationLogRow) {
			for _, o := range observers {
				o(row)
			}
		}
	}

	mms, err := engine.NewMMS(input, opts)
	if err != nil {
		return err
	}
	simLog, err := mms.Run(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(simLog)
}

// engineOptions maps the configuration onto the run options.
func engineOptions(cfg config.Config, log logrus.FieldLogger) engine.Options {
	return engine.Options{
		Steering:  cfg.Steering(log),
		SyncEvery: cfg.RentalSyncEvery,
		Vehicles:  cfg.VehicleSpecs(),
	}
}

// recorder stores the station counts of every logged row in db.
func recorder(ctx context.Context, db *store.DB, log logrus.FieldLogger) func(engine.SimulationLogRow) {
	return func(row engine.SimulationLogRow) {
		for _, st := range row.Stations {
			if err := db.RecordOccupancy(ctx, st.Station, row.Tick, st.Count); err != nil {
				log.WithError(err).WithField("station", st.Station).Warn("recording occupancy failed")
			}
		}
	}
}
