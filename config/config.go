package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tijuhasz/osm/geom"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	OsmPBF             string
	Port               int
	SnapMeters         float64
	Calculator         string
	MaxCandidateMeters float64
	MaxCandidates      int
	LogLevel           slog.Level
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Port:               8080,
		SnapMeters:         1.0,
		Calculator:         "haversine",
		MaxCandidateMeters: 500,
		MaxCandidates:      8,
		LogLevel:           slog.LevelInfo,
	}
}

// Load reads and validates environment variables.
// Returns a ConfigError for the first invalid value.
func Load() (*Config, error) {
	cfg := Default()
	cfg.OsmPBF = os.Getenv("OSM_PBF")

	if s := os.Getenv("PORT"); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return nil, &ConfigError{Field: "PORT", Message: "must be a valid integer"}
		}
		cfg.Port = port
	}
	if s := os.Getenv("SNAP_METERS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ConfigError{Field: "SNAP_METERS", Message: "must be a number"}
		}
		cfg.SnapMeters = v
	}
	if s := os.Getenv("DISTANCE_CALCULATOR"); s != "" {
		cfg.Calculator = strings.ToLower(s)
	}
	if s := os.Getenv("MAX_CANDIDATE_METERS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ConfigError{Field: "MAX_CANDIDATE_METERS", Message: "must be a number"}
		}
		cfg.MaxCandidateMeters = v
	}
	if s := os.Getenv("MAX_CANDIDATES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, &ConfigError{Field: "MAX_CANDIDATES", Message: "must be a valid integer"}
		}
		cfg.MaxCandidates = v
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(s)); err != nil {
			return nil, &ConfigError{Field: "LOG_LEVEL", Message: "must be one of debug, info, warn, error"}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and joins all problems found.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"})
	}
	if c.SnapMeters <= 0 {
		errs = append(errs, &ConfigError{Field: "SNAP_METERS", Message: "must be positive"})
	}
	if _, err := geom.CalculatorByName(c.Calculator); err != nil {
		errs = append(errs, &ConfigError{Field: "DISTANCE_CALCULATOR", Message: err.Error()})
	}
	if c.MaxCandidateMeters < 0 {
		errs = append(errs, &ConfigError{Field: "MAX_CANDIDATE_METERS", Message: "cannot be negative"})
	}
	if c.MaxCandidates < 1 {
		errs = append(errs, &ConfigError{Field: "MAX_CANDIDATES", Message: "must be at least 1"})
	}
	if c.OsmPBF != "" {
		if _, err := os.Stat(c.OsmPBF); err != nil {
			errs = append(errs, &ConfigError{Field: "OSM_PBF", Message: "file not readable"})
		}
	}
	return errors.Join(errs...)
}

// CalculatorImpl returns the distance calculator named by Calculator.
func (c *Config) CalculatorImpl() (geom.Calculator, error) {
	return geom.CalculatorByName(c.Calculator)
}
