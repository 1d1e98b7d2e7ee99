package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/discovr-ingest/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "discovr.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load(writeConfig(t, Example()))
	if err != nil {
		t.Fatalf("Load(example) error: %v", err)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("Sources = %d, want 3", len(cfg.Sources))
	}
	if cfg.Ingest.Grace != 24*time.Hour || cfg.Ingest.RetryInitial != 200*time.Millisecond {
		t.Errorf("Ingest = %+v, want durations parsed", cfg.Ingest)
	}
	if cfg.Sources[2].Horizon != 90*24*time.Hour {
		t.Errorf("ics Horizon = %v, want 2160h", cfg.Sources[2].Horizon)
	}
	if cfg.Sources[0].Selectors == nil || cfg.Sources[0].Selectors.Item != ".event-card" {
		t.Errorf("html Selectors = %+v, want .event-card item", cfg.Sources[0].Selectors)
	}
	if cfg.Sources[1].Timeout != source.DefaultTimeout {
		t.Errorf("json Timeout = %v, want default", cfg.Sources[1].Timeout)
	}
	if cfg.Location().String() != "America/Vancouver" {
		t.Errorf("Location() = %v, want America/Vancouver", cfg.Location())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Driver != DriverFile || cfg.Store.URI != DefaultStorePath {
		t.Errorf("Store = %+v, want default file store", cfg.Store)
	}
	if cfg.Ingest.Workers != DefaultWorkers || cfg.Ingest.BatchSize != DefaultBatchSize {
		t.Errorf("Ingest = %+v, want defaults", cfg.Ingest)
	}
	if cfg.Schedule.Cron != DefaultCron {
		t.Errorf("Cron = %q, want %q", cfg.Schedule.Cron, DefaultCron)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStoreDriver, "mongo")
	t.Setenv(EnvStoreURI, "mongodb://db:27017")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(writeConfig(t, "store:\n  driver: file\n  uri: /tmp/x.json\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Driver != DriverMongo || cfg.Store.URI != "mongodb://db:27017" {
		t.Errorf("Store = %+v, want env overrides", cfg.Store)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad yaml", "store: [", "parsing config"},
		{"unknown driver", "store:\n  driver: redis\n  uri: x\n", "Driver"},
		{"postgres without uri", "store:\n  driver: postgres\n", "URI"},
		{"bad log level", "log_level: loud\n", "unknown log level"},
		{"bad timezone", "ingest:\n  timezone: Mars/Olympus\n", "timezone"},
		{"bad cron", "schedule:\n  cron: every day\n", "cron"},
		{"too many workers", "ingest:\n  workers: 500\n", "Workers"},
		{"unknown source type", "sources:\n  - name: a\n    type: rss\n    url: https://example.com\n", "Type"},
		{"source without location", "sources:\n  - name: a\n    type: json\n", "Path"},
		{"html without selectors", "sources:\n  - name: a\n    type: html\n    url: https://example.com\n", "Selectors"},
		{"duplicate source", "sources:\n  - name: a\n    type: json\n    path: a.json\n  - name: a\n    type: json\n    path: b.json\n", "duplicate source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DISCOVR_TEST_FROM_DOTENV=yes\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCOVR_TEST_FROM_DOTENV", "")
	os.Unsetenv("DISCOVR_TEST_FROM_DOTENV")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error: %v", err)
	}
	if got := os.Getenv("DISCOVR_TEST_FROM_DOTENV"); got != "yes" {
		t.Errorf("DISCOVR_TEST_FROM_DOTENV = %q, want yes", got)
	}
}

func TestDefault_RoundTripsThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after round trip error: %v", err)
	}
}
