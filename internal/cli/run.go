package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/discovr-ingest/internal/ingest"
	"github.com/pfrederiksen/discovr-ingest/internal/logger"
	"github.com/pfrederiksen/discovr-ingest/internal/metrics"
	"github.com/pfrederiksen/discovr-ingest/internal/source"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
	"github.com/pfrederiksen/discovr-ingest/internal/venue"
)

var (
	flagRunDryRun     bool
	flagRunFormat     string
	flagRunSources    []string
	flagRunDiscovered string
	flagRunTextfile   string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion pass over the configured sources",
		Long: `Fetch every configured source, normalize and filter the candidates, and upsert
the accepted events. Exits 2 when the run completed but a source or storage call failed.`,
		Args: cobra.NoArgs,
		RunE: runIngest,
	}

	cmd.Flags().BoolVar(&flagRunDryRun, "dry-run", false, "Process sources into an in-memory store instead of the configured one")
	cmd.Flags().StringVar(&flagRunFormat, "format", "text", "Report format: text or json")
	cmd.Flags().StringSliceVar(&flagRunSources, "source", nil, "Only run the named sources (repeatable)")
	cmd.Flags().StringVar(&flagRunDiscovered, "discovered-venues", "", "Write venues discovered during the run to this YAML file")
	cmd.Flags().StringVar(&flagRunTextfile, "metrics-textfile", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagRunFormat, FormatText, FormatJSON)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	sources, err := a.sources(flagRunSources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured in %s", flagConfig)
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx, flagRunDryRun)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore(store)

	m := metrics.New()
	report, resolver, runErr := a.runOnce(ctx, sources, store, m)

	if err := WriteReport(cmd.OutOrStdout(), report, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if flagRunDiscovered != "" {
		if err := writeDiscovered(flagRunDiscovered, resolver.Cache()); err != nil {
			return err
		}
	}
	if flagRunTextfile != "" {
		if err := m.WriteTextfile(flagRunTextfile); err != nil {
			return fmt.Errorf("writing metrics textfile: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.HasErrors() {
		return ErrIncomplete
	}
	return nil
}

// runOnce performs one coordinator run with a fresh venue cache.
func (a *app) runOnce(ctx context.Context, sources []source.Source, store storage.Store, m *metrics.Metrics) (*ingest.Report, *venue.Resolver, error) {
	c, resolver := a.coordinator(sources, store, m)
	report, err := c.Run(ctx)
	return report, resolver, err
}

func writeDiscovered(path string, cache *venue.Cache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := cache.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	logger.Info("Wrote discovered venues", logger.Fields{"path": path, "venues": cache.Size()})
	return nil
}
