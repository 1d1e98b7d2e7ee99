package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pfrederiksen/discovr-ingest/internal/config"
	"github.com/pfrederiksen/discovr-ingest/internal/ingest"
	"github.com/pfrederiksen/discovr-ingest/internal/logger"
	"github.com/pfrederiksen/discovr-ingest/internal/metrics"
	"github.com/pfrederiksen/discovr-ingest/internal/source"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
	"github.com/pfrederiksen/discovr-ingest/internal/storage/mongo"
	"github.com/pfrederiksen/discovr-ingest/internal/storage/postgres"
	"github.com/pfrederiksen/discovr-ingest/internal/venue"
)

// app is the loaded configuration shared by the subcommands.
type app struct {
	cfg   *config.Config
	table *venue.Table
}

// loadApp reads the environment file and configuration, configures the
// default logger and loads the venue table.
func loadApp() (*app, error) {
	if err := config.LoadEnv(flagEnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if flagVerbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(level, os.Stderr))

	table, err := loadTable(cfg.VenuesFile)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, table: table}, nil
}

func loadTable(path string) (*venue.Table, error) {
	if path == "" {
		return venue.DefaultTable()
	}
	t, err := venue.LoadTable(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded venue table", logger.Fields{"path": path, "venues": len(t.Entries(""))})
	return t, nil
}

// sources builds the configured sources, limited to names when any are given.
func (a *app) sources(names []string) ([]source.Source, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []source.Source
	for _, sc := range a.cfg.Sources {
		if len(want) > 0 && !want[sc.Name] {
			continue
		}
		delete(want, sc.Name)
		s, err := source.NewFromConfig(sc)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		out = append(out, s)
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown source: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// openStore opens the configured store. dryRun always yields a MemoryStore.
func (a *app) openStore(ctx context.Context, dryRun bool) (storage.Store, error) {
	sc := a.cfg.Store
	if dryRun {
		sc.Driver = config.DriverMemory
	}

	switch sc.Driver {
	case config.DriverMemory:
		return storage.NewMemoryStore(), nil
	case config.DriverFile:
		return storage.NewFileStore(sc.URI)
	case config.DriverMongo:
		return mongo.Open(ctx, sc.URI, sc.Database, sc.Collection)
	case config.DriverPostgres:
		return postgres.Open(ctx, sc.URI, sc.Collection)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", sc.Driver)
	}
}

func closeStore(store storage.Store) {
	c, ok := store.(storage.Closer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		logger.Warn("Closing store failed", logger.Fields{"error": err.Error()})
	}
}

func (a *app) coordinator(sources []source.Source, store storage.Store, m *metrics.Metrics) (*ingest.Coordinator, *venue.Resolver) {
	resolver := venue.NewResolver(a.table)
	in := a.cfg.Ingest
	c := ingest.New(sources, store, resolver, ingest.Options{
		Workers:       in.Workers,
		BatchSize:     in.BatchSize,
		Grace:         in.Grace,
		RetryAttempts: in.RetryAttempts,
		RetryInitial:  in.RetryInitial,
		RetryMax:      in.RetryMax,
		Location:      a.cfg.Location(),
		JunkPhrases:   in.JunkPhrases,
		Metrics:       m,
	})
	return c, resolver
}
