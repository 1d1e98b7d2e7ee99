package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
)

var (
	flagEventsCity     string
	flagEventsSort     string
	flagEventsFormat   string
	flagEventsUpcoming bool
	flagEventsLimit    int
	flagEventsOutput   string
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List or export stored events",
		Long: `List the events in the configured store, optionally as JSON or as an
iCalendar feed that calendar clients can subscribe to.`,
		Args: cobra.NoArgs,
		RunE: runEvents,
	}

	cmd.Flags().StringVar(&flagEventsCity, "city", "", "Only list events in this city (name, keyword or code)")
	cmd.Flags().StringVar(&flagEventsSort, "sort", "date", "Sort order: date, city or title")
	cmd.Flags().StringVar(&flagEventsFormat, "format", "text", "Output format: text, json or ics")
	cmd.Flags().BoolVar(&flagEventsUpcoming, "upcoming", false, "Skip events that have already started")
	cmd.Flags().IntVar(&flagEventsLimit, "limit", 0, "Maximum number of events (0 for all)")
	cmd.Flags().StringVarP(&flagEventsOutput, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

func runEvents(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagEventsFormat, FormatText, FormatJSON, FormatICS)
	if err != nil {
		return err
	}
	order, err := parseSortOrder(flagEventsSort)
	if err != nil {
		return err
	}
	a, err := loadApp()
	if err != nil {
		return err
	}

	city := ""
	if flagEventsCity != "" {
		if city = a.table.CanonicalCity(flagEventsCity); city == "" {
			return fmt.Errorf("unknown city: %s", flagEventsCity)
		}
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx, false)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore(store)

	lister, ok := store.(storage.Lister)
	if !ok {
		return fmt.Errorf("store driver %s cannot list events", a.cfg.Store.Driver)
	}
	events, err := lister.List(ctx, city)
	if err != nil {
		return err
	}

	now := time.Now()
	events = selectEvents(events, order, flagEventsUpcoming, flagEventsLimit, now)

	var w io.Writer = cmd.OutOrStdout()
	if flagEventsOutput != "" {
		f, err := os.Create(flagEventsOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", flagEventsOutput, err)
		}
		defer f.Close()
		w = f
	}
	if err := WriteEvents(w, events, format, flagVerbose, now); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// selectEvents drops started events when upcoming is set, sorts and applies
// the limit.
func selectEvents(events []*event.NormalizedEvent, order SortOrder, upcoming bool, limit int, now time.Time) []*event.NormalizedEvent {
	if upcoming {
		kept := events[:0]
		for _, e := range events {
			if !e.StartTime.Before(now) {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	sortEvents(events, order)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
