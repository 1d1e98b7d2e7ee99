package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitIncomplete = 2
)

// ErrIncomplete is returned by run when the report was written but some
// source or storage call failed.
var ErrIncomplete = errors.New("run finished with errors")

// Version is reported by --version. Set from main.
var Version = "dev"

var (
	flagConfig  string
	flagEnvFile string
	flagVerbose bool
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discovr-ingest",
		Short: "Normalize, deduplicate and store scraped event listings",
		Long: `discovr-ingest pulls candidate events from the configured sources, normalizes
dates and venues, rejects junk and cross-city listings, and upserts one record per
event fingerprint into the configured store.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "discovr.yaml", "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file loaded before the configuration")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCmd(),
		newScheduleCmd(),
		newCheckCmd(),
		newVenuesCmd(),
		newEventsCmd(),
		newInitCmd(),
	)
	return cmd
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
		os.Exit(ExitSuccess)
	case errors.Is(err, ErrIncomplete):
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		os.Exit(ExitIncomplete)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
