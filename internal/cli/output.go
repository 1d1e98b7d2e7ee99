package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/discovr-ingest/internal/calendar"
	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/filter"
	"github.com/pfrederiksen/discovr-ingest/internal/ingest"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
	FormatYAML OutputFormat = "yaml"
)

// parseFormat validates a --format value against the formats a command
// supports.
func parseFormat(value string, allowed ...OutputFormat) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(value)))
	names := make([]string, len(allowed))
	for i, a := range allowed {
		if f == a {
			return f, nil
		}
		names[i] = "'" + string(a) + "'"
	}
	return "", fmt.Errorf("invalid format: %s (must be %s)", value, strings.Join(names, " or "))
}

// WriteReport writes a run report in the specified format
func WriteReport(w io.Writer, report *ingest.Report, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatText:
		return writeReportText(w, report, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// WriteEvents writes stored events in the specified format
func WriteEvents(w io.Writer, events []*event.NormalizedEvent, format OutputFormat, verbose bool, now time.Time) error {
	switch format {
	case FormatJSON:
		if events == nil {
			events = []*event.NormalizedEvent{}
		}
		return writeJSON(w, events)
	case FormatICS:
		return calendar.WriteICS(w, events, "discovr events", now)
	case FormatText:
		return writeEventsText(w, events, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs v as indented JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeReportText(w io.Writer, r *ingest.Report, verbose bool) error {
	status := "completed"
	if r.Aborted {
		status = "aborted"
	}
	fmt.Fprintf(w, "Run %s %s in %s\n", r.RunID, status, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Seen:       %d\n", r.Seen)
	fmt.Fprintf(w, "  Accepted:   %d (%d duplicates within the run)\n", r.Accepted, r.Duplicates)
	fmt.Fprintf(w, "  Rejected:   %d\n", r.RejectedTotal())
	for _, reason := range filter.Reasons() {
		if n := r.Rejected[reason]; n > 0 {
			fmt.Fprintf(w, "    %-17s %d\n", reason, n)
		}
	}
	fmt.Fprintf(w, "  Inserted:   %d\n", r.Inserted)
	fmt.Fprintf(w, "  Updated:    %d (%d with changes)\n", r.Updated, r.Changed)
	if r.Stale > 0 {
		fmt.Fprintf(w, "  Stale:      %d\n", r.Stale)
	}
	if r.StorageErrors > 0 {
		fmt.Fprintf(w, "  Storage errors: %d\n", r.StorageErrors)
	}
	if r.SourceErrors > 0 {
		fmt.Fprintf(w, "  Source errors:  %d\n", r.SourceErrors)
	}
	if r.DiscoveredVenues > 0 {
		fmt.Fprintf(w, "  Discovered venues: %d\n", r.DiscoveredVenues)
	}

	if !verbose && r.SourceErrors == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(r.Sources))
	for _, s := range r.Sources {
		if s.Error != "" {
			fmt.Fprintf(w, "  %s: FAILED: %s\n", s.Name, s.Error)
			continue
		}
		if verbose {
			fmt.Fprintf(w, "  %s: %d candidates, %d accepted, %d rejected\n", s.Name, s.Candidates, s.Accepted, s.Rejected)
		}
	}
	return nil
}

func writeEventsText(w io.Writer, events []*event.NormalizedEvent, verbose bool) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	for _, e := range events {
		fmt.Fprintf(w, "%s  %s @ %s (%s)\n", formatStart(e), e.Title, e.Venue.Name, e.City)
		if verbose {
			fmt.Fprintf(w, "     ID: %s\n", e.DisplayID)
			fmt.Fprintf(w, "     Fingerprint: %s\n", e.Fingerprint)
			if e.Venue.Address != "" {
				fmt.Fprintf(w, "     Address: %s\n", e.Venue.Address)
			}
			fmt.Fprintf(w, "     Category: %s\n", e.Category)
			if e.Price != "" {
				fmt.Fprintf(w, "     Price: %s\n", e.Price)
			}
			fmt.Fprintf(w, "     Sources: %s\n", strings.Join(e.Sources, ", "))
		}
	}
	fmt.Fprintf(w, "\nTotal: %d events\n", len(events))
	return nil
}

func formatStart(e *event.NormalizedEvent) string {
	if calendar.IsAllDay(e) {
		return e.StartTime.UTC().Format("2006-01-02")
	}
	return e.StartTime.UTC().Format("2006-01-02 15:04Z")
}
