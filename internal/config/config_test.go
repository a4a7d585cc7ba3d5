package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

const sample = `
traffic_code: south-african
explore_factor: 4
overtaking: true
log_level: debug
rental_sync_every: 30
vehicles:
  bicycle:
    max_speed: 4.5
    turning_speeds:
      left: 2.5
  bus:
    capacity: 90
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func noEnvFile(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.env") }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Zero(t, cfg.RentalSyncEvery, "stations only synchronise when asked to")
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(write(t, "mms.yaml", sample), noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "south-african", cfg.TrafficCode)
	assert.Equal(t, 4.0, cfg.ExploreFactor)
	assert.True(t, cfg.Overtaking)
	assert.Equal(t, int64(30), cfg.RentalSyncEvery)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep their default")

	opts := cfg.Steering(nil)
	assert.Equal(t, "south-african", opts.TrafficCode)
	assert.True(t, opts.Overtaking)

	specs := cfg.VehicleSpecs()
	bike := specs[vehicle.KindBicycle]
	assert.Equal(t, 4.5, bike.MaxSpeed)
	assert.Equal(t, vehicle.Defaults(vehicle.KindBicycle).Length, bike.Length)
	assert.Equal(t, 2.5, bike.TurningSpeeds[graph.Left])
	assert.Equal(t, vehicle.BicycleTurningSpeeds[graph.Right], bike.TurningSpeeds[graph.Right])
	assert.Equal(t, 3.33, vehicle.BicycleTurningSpeeds[graph.Left], "presets stay untouched")
	assert.Equal(t, 90, specs[vehicle.KindBus].Capacity)
	assert.NotContains(t, specs, vehicle.KindCar)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("MMS_TRAFFIC_CODE", "german")
	t.Setenv("MMS_EXPLORE_FACTOR", "8")
	t.Setenv("MMS_OVERTAKING", "false")
	t.Setenv("MMS_RENTAL_SYNC_EVERY", "not-a-number")

	cfg, err := Load(write(t, "mms.yaml", sample), noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "german", cfg.TrafficCode)
	assert.Equal(t, 8.0, cfg.ExploreFactor)
	assert.False(t, cfg.Overtaking)
	assert.Equal(t, int64(30), cfg.RentalSyncEvery, "unparsable values are ignored")
}

func TestDotEnvFile(t *testing.T) {
	t.Cleanup(func() {
		os.Unsetenv("MMS_LOG_FORMAT")
		os.Unsetenv("MMS_FEED_DB")
	})
	env := write(t, ".env", "MMS_LOG_FORMAT=json\nMMS_FEED_DB=/tmp/feed.db\n")
	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/tmp/feed.db", cfg.FeedDB)
	_, ok := cfg.Logger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"traffic code":   func(c *Config) { c.TrafficCode = "british" },
		"explore factor": func(c *Config) { c.ExploreFactor = 0 },
		"sync":           func(c *Config) { c.RentalSyncEvery = -1 },
		"log level":      func(c *Config) { c.LogLevel = "chatty" },
		"log format":     func(c *Config) { c.LogFormat = "xml" },
		"vehicle kind":   func(c *Config) { c.Vehicles = map[string]VehicleConfig{"hovercraft": {}} },
		"negative":       func(c *Config) { c.Vehicles = map[string]VehicleConfig{"car": {MaxSpeed: -1}} },
		"direction": func(c *Config) {
			c.Vehicles = map[string]VehicleConfig{"car": {TurningSpeeds: map[string]float64{"sideways": 1}}}
		},
		"turning speed": func(c *Config) {
			c.Vehicles = map[string]VehicleConfig{"car": {TurningSpeeds: map[string]float64{"left": 0}}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())

	_, err := Load(write(t, "bad.yaml", "traffic_code: [\n"), noEnvFile(t))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"), noEnvFile(t))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	log := cfg.Logger()
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
