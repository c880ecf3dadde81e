package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tijuhasz/osm/geom"
)

var envVars = []string{
	"OSM_PBF", "PORT", "SNAP_METERS", "DISTANCE_CALCULATOR",
	"MAX_CANDIDATE_METERS", "MAX_CANDIDATES", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	pbf := filepath.Join(t.TempDir(), "area.osm.pbf")
	if err := os.WriteFile(pbf, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OSM_PBF", pbf)
	t.Setenv("PORT", "9090")
	t.Setenv("SNAP_METERS", "2.5")
	t.Setenv("DISTANCE_CALCULATOR", "S2")
	t.Setenv("MAX_CANDIDATE_METERS", "0")
	t.Setenv("MAX_CANDIDATES", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		OsmPBF:             pbf,
		Port:               9090,
		SnapMeters:         2.5,
		Calculator:         "s2",
		MaxCandidateMeters: 0,
		MaxCandidates:      3,
		LogLevel:           slog.LevelDebug,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port not a number", key: "PORT", value: "abc"},
		{name: "port out of range", key: "PORT", value: "70000"},
		{name: "snap not a number", key: "SNAP_METERS", value: "close"},
		{name: "snap zero", key: "SNAP_METERS", value: "0"},
		{name: "unknown calculator", key: "DISTANCE_CALCULATOR", value: "manhattan"},
		{name: "negative radius", key: "MAX_CANDIDATE_METERS", value: "-1"},
		{name: "no candidates", key: "MAX_CANDIDATES", value: "0"},
		{name: "bad log level", key: "LOG_LEVEL", value: "loud"},
		{name: "missing pbf", key: "OSM_PBF", value: "/does/not/exist.osm.pbf"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want ConfigError", err)
			}
			if cfgErr.Field != tc.key {
				t.Errorf("field = %q, want %q", cfgErr.Field, tc.key)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := &Config{Port: 0, SnapMeters: -1, Calculator: "flat", MaxCandidates: 0}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("error %T does not join", err)
	}
	var fields []string
	for _, e := range joined.Unwrap() {
		var cfgErr *ConfigError
		if errors.As(e, &cfgErr) {
			fields = append(fields, cfgErr.Field)
		}
	}
	want := []string{"PORT", "SNAP_METERS", "DISTANCE_CALCULATOR", "MAX_CANDIDATES"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculatorImpl(t *testing.T) {
	cfg := Default()
	cfg.Calculator = "greatcircle"
	calc, err := cfg.CalculatorImpl()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := calc.(geom.GreatCircle); !ok {
		t.Errorf("calculator = %T, want geom.GreatCircle", calc)
	}
}
