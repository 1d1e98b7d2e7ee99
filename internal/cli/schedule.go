package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/discovr-ingest/internal/logger"
	"github.com/pfrederiksen/discovr-ingest/internal/metrics"
)

var (
	flagScheduleNow     bool
	flagScheduleMetrics string
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run ingestion on the configured cron schedule and serve metrics",
		Long: `Run ingestion passes on schedule.cron until interrupted. A pass that is still
running when the next one is due is skipped. Prometheus metrics are served on
/metrics and liveness on /healthz.`,
		Args: cobra.NoArgs,
		RunE: runSchedule,
	}

	cmd.Flags().BoolVar(&flagScheduleNow, "now", false, "Start a pass immediately instead of waiting for the first tick")
	cmd.Flags().StringVar(&flagScheduleMetrics, "metrics-addr", "", "Override schedule.metrics_addr")

	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	sources, err := a.sources(nil)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured in %s", flagConfig)
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx, false)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore(store)

	addr := a.cfg.Schedule.MetricsAddr
	if flagScheduleMetrics != "" {
		addr = flagScheduleMetrics
	}
	m := metrics.New()
	srv := metrics.NewServer(addr, m)
	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error("Metrics server stopped", logger.Fields{"addr": addr}, err)
		}
	}()

	pass := func() {
		report, _, err := a.runOnce(ctx, sources, store, m)
		if err != nil {
			logger.Warn("Scheduled run interrupted", logger.Fields{"run_id": report.RunID, "error": err.Error()})
		}
	}

	cl := cronLogger{}
	c := cron.New(
		cron.WithLocation(a.cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(a.cfg.Schedule.Cron, pass)
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", a.cfg.Schedule.Cron, err)
	}

	logger.Info("Scheduler started", logger.Fields{
		"cron":         a.cfg.Schedule.Cron,
		"metrics_addr": addr,
		"sources":      len(sources),
	})
	c.Start()
	var immediate sync.WaitGroup
	if flagScheduleNow {
		// The wrapped job carries the chain, so a tick cannot overlap it.
		immediate.Add(1)
		go func() {
			defer immediate.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	logger.Info("Scheduler stopping, waiting for the running pass", nil)
	<-c.Stop().Done()
	immediate.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping metrics server: %w", err)
	}
	return nil
}

// cronLogger routes the scheduler's own messages to the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, kvFields(keysAndValues), err)
}

func kvFields(kv []interface{}) logger.Fields {
	if len(kv) == 0 {
		return nil
	}
	f := make(logger.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
