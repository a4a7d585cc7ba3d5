// Package config loads the run configuration: a YAML file overlaid by a .env
// file and MMS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cxd309/mms-engine/internal/graph"
	"github.com/cxd309/mms-engine/internal/intersection"
	"github.com/cxd309/mms-engine/internal/steering"
	"github.com/cxd309/mms-engine/internal/vehicle"
)

// VehicleConfig overrides the preset of one vehicle kind. Zero fields keep
// the preset.
type VehicleConfig struct {
	MaxSpeed      float64            `yaml:"max_speed"`    // m/s
	Acceleration  float64            `yaml:"acceleration"` // m/s²
	Deceleration  float64            `yaml:"deceleration"` // m/s², positive
	Capacity      int                `yaml:"capacity"`
	Length        float64            `yaml:"length"` // m
	TurningSpeeds map[string]float64 `yaml:"turning_speeds"`
}

// Config holds all configuration for a simulation run
type Config struct {
	// Steering
	TrafficCode   string  `yaml:"traffic_code"`
	ExploreFactor float64 `yaml:"explore_factor"`
	Overtaking    bool    `yaml:"overtaking"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json

	// Rental stations
	RentalSyncEvery int64  `yaml:"rental_sync_every"` // ticks, 0 disables
	FeedDB          string `yaml:"feed_db"`           // sqlite occupancy feed, optional

	// Telemetry
	HTTPAddr string `yaml:"http_addr"`

	Vehicles map[string]VehicleConfig `yaml:"vehicles"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ExploreFactor: steering.DefaultExploreFactor,
		LogLevel:      "info",
		LogFormat:     "text",
		HTTPAddr:      ":8081",
	}
}

// Load reads the YAML file at path (skipped when empty), then .env files and
// the environment, and validates the result.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.TrafficCode = getEnv("MMS_TRAFFIC_CODE", c.TrafficCode)
	c.ExploreFactor = getEnvFloat("MMS_EXPLORE_FACTOR", c.ExploreFactor)
	c.Overtaking = getEnvBool("MMS_OVERTAKING", c.Overtaking)
	c.LogLevel = getEnv("MMS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("MMS_LOG_FORMAT", c.LogFormat)
	c.RentalSyncEvery = int64(getEnvInt("MMS_RENTAL_SYNC_EVERY", int(c.RentalSyncEvery)))
	c.FeedDB = getEnv("MMS_FEED_DB", c.FeedDB)
	c.HTTPAddr = getEnv("MMS_HTTP_ADDR", c.HTTPAddr)
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	switch c.TrafficCode {
	case "", intersection.CodeGerman, intersection.CodeSouthAfrican:
	default:
		return fmt.Errorf("unknown traffic code %q", c.TrafficCode)
	}
	if c.ExploreFactor <= 0 {
		return fmt.Errorf("explore_factor must be positive, got %g", c.ExploreFactor)
	}
	if c.RentalSyncEvery < 0 {
		return fmt.Errorf("rental_sync_every must not be negative, got %d", c.RentalSyncEvery)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	for kind, v := range c.Vehicles {
		if _, err := vehicle.ParseKind(kind); err != nil {
			return err
		}
		if v.MaxSpeed < 0 || v.Acceleration < 0 || v.Deceleration < 0 || v.Length < 0 || v.Capacity < 0 {
			return fmt.Errorf("vehicle %s: values must not be negative", kind)
		}
		for dir, speed := range v.TurningSpeeds {
			if _, err := graph.ParseDirection(dir); err != nil {
				return fmt.Errorf("vehicle %s: %w", kind, err)
			}
			if speed <= 0 {
				return fmt.Errorf("vehicle %s: turning speed %s must be positive", kind, dir)
			}
		}
	}
	return nil
}

// Logger builds the logger described by the log settings.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Steering returns the steering options, logging to log.
func (c Config) Steering(log logrus.FieldLogger) steering.Options {
	return steering.Options{
		TrafficCode:   c.TrafficCode,
		ExploreFactor: c.ExploreFactor,
		Overtaking:    c.Overtaking,
		Log:           log,
	}
}

// VehicleSpecs merges the vehicle overrides onto the per-kind presets.
// Validate must have accepted c.
func (c Config) VehicleSpecs() map[vehicle.Kind]vehicle.Spec {
	out := make(map[vehicle.Kind]vehicle.Spec, len(c.Vehicles))
	for name, v := range c.Vehicles {
		kind := vehicle.Kind(name)
		s := vehicle.Defaults(kind)
		if v.MaxSpeed > 0 {
			s.MaxSpeed = v.MaxSpeed
		}
		if v.Acceleration > 0 {
			s.Acceleration = v.Acceleration
		}
		if v.Deceleration > 0 {
			s.Deceleration = v.Deceleration
		}
		if v.Capacity > 0 {
			s.Capacity = v.Capacity
		}
		if v.Length > 0 {
			s.Length = v.Length
		}
		if len(v.TurningSpeeds) > 0 {
			turning := make(vehicle.TurningSpeeds, len(s.TurningSpeeds)+len(v.TurningSpeeds))
			for d, speed := range s.TurningSpeeds {
				turning[d] = speed
			}
			for name, speed := range v.TurningSpeeds {
				d, _ := graph.ParseDirection(name)
				turning[d] = speed
			}
			s.TurningSpeeds = turning
		}
		out[kind] = s
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
