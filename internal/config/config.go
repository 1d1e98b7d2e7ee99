// Package config loads the discovr-ingest YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // ingest.timezone resolves without system zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/discovr-ingest/internal/logger"
	"github.com/pfrederiksen/discovr-ingest/internal/source"
)

// Store drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Environment overrides applied after the file is read.
const (
	EnvStoreDriver = "DISCOVR_STORE_DRIVER"
	EnvStoreURI    = "DISCOVR_STORE_URI"
	EnvLogLevel    = "DISCOVR_LOG_LEVEL"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=file memory mongo postgres"`
	// URI is a file path for the file driver and a connection string otherwise.
	URI string `yaml:"uri" validate:"required_unless=Driver memory"`
	// Database is the mongo database name.
	Database string `yaml:"database"`
	// Collection is the mongo collection or the postgres table.
	Collection string `yaml:"collection"`
}

// IngestConfig tunes the coordinator.
type IngestConfig struct {
	Workers       int           `yaml:"workers" validate:"gte=1,lte=64"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=1,lte=1000"`
	Grace         time.Duration `yaml:"grace" validate:"gte=0"`
	RetryAttempts int           `yaml:"retry_attempts" validate:"gte=1,lte=10"`
	RetryInitial  time.Duration `yaml:"retry_initial"`
	RetryMax      time.Duration `yaml:"retry_max"`
	// Timezone interprets wall-clock dates that carry no offset.
	Timezone    string   `yaml:"timezone"`
	JunkPhrases []string `yaml:"junk_phrases"`
}

// ScheduleConfig is used by the schedule command.
type ScheduleConfig struct {
	Cron        string `yaml:"cron"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config is the top-level configuration.
type Config struct {
	LogLevel   string          `yaml:"log_level"`
	VenuesFile string          `yaml:"venues_file"`
	Store      StoreConfig     `yaml:"store"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Schedule   ScheduleConfig  `yaml:"schedule"`
	Sources    []source.Config `yaml:"sources" validate:"dive"`
}

// Defaults
const (
	DefaultWorkers       = 4
	DefaultBatchSize     = 50
	DefaultGrace         = 24 * time.Hour
	DefaultRetryAttempts = 3
	DefaultRetryInitial  = 200 * time.Millisecond
	DefaultRetryMax      = 5 * time.Second
	DefaultCron          = "0 */6 * * *"
	DefaultMetricsAddr   = ":9464"
	DefaultStorePath     = "~/.local/share/discovr-ingest/events.json"
)

// Default returns a configuration with no sources and a file store.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = string(logger.LevelInfo)
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.Driver == DriverFile && c.Store.URI == "" {
		c.Store.URI = DefaultStorePath
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = DefaultWorkers
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = DefaultBatchSize
	}
	if c.Ingest.Grace == 0 {
		c.Ingest.Grace = DefaultGrace
	}
	if c.Ingest.RetryAttempts <= 0 {
		c.Ingest.RetryAttempts = DefaultRetryAttempts
	}
	if c.Ingest.RetryInitial <= 0 {
		c.Ingest.RetryInitial = DefaultRetryInitial
	}
	if c.Ingest.RetryMax <= 0 {
		c.Ingest.RetryMax = DefaultRetryMax
	}
	if c.Ingest.Timezone == "" {
		c.Ingest.Timezone = "UTC"
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if c.Schedule.MetricsAddr == "" {
		c.Schedule.MetricsAddr = DefaultMetricsAddr
	}
	for i := range c.Sources {
		c.Sources[i].Normalize()
	}
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("Config file not found, using defaults", logger.Fields{"path": path})
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvStoreDriver)); v != "" {
		c.Store.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreURI)); v != "" {
		c.Store.URI = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

var validate = validator.New()

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Ingest.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("invalid config: cron %q: %w", c.Schedule.Cron, err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if seen[s.Name] {
			return fmt.Errorf("invalid config: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Location returns the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ingest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Example returns a commented starting configuration.
func Example() string {
	return exampleYAML
}

const exampleYAML = `# discovr-ingest configuration
log_level: info

# venues_file: venues.yaml   # overrides the built-in venue table

store:
  driver: file               # file | memory | mongo | postgres
  uri: ~/.local/share/discovr-ingest/events.json
  # driver: mongo
  # uri: mongodb://localhost:27017
  # database: discovr
  # collection: events

ingest:
  workers: 4
  batch_size: 50
  grace: 24h
  retry_attempts: 3
  retry_initial: 200ms
  retry_max: 5s
  timezone: America/Vancouver
  junk_phrases: []

schedule:
  cron: "0 */6 * * *"
  metrics_addr: ":9464"

sources:
  - name: vancouver-listings
    type: html
    url: https://example.com/vancouver/events
    city: Vancouver
    selectors:
      item: .event-card
      title: h3
      date: time
      venue: .venue
      address: .address
      link: a
  - name: partner-drop
    type: json
    path: /var/lib/discovr/partner.json
  - name: seattle-calendar
    type: ics
    url: https://example.com/seattle.ics
    city: Seattle
    horizon: 2160h
`
