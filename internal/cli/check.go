package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/ingest"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
)

var (
	flagCheckFormat string
	flagCheckCand   event.CandidateEvent
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Normalize and classify a single candidate event",
		Long: `Run one candidate through date normalization, venue resolution, the validity
rules and fingerprinting, and print the verdict. Nothing is written to the store.`,
		Example: `  discovr-ingest check --title "Jazz Night" --date "Jan 15 8pm" --venue "Blue Note" --city NYC`,
		Args:    cobra.NoArgs,
		RunE:    runCheck,
	}

	c := &flagCheckCand
	cmd.Flags().StringVar(&c.Title, "title", "", "Event title (required)")
	cmd.Flags().StringVar(&c.DateText, "date", "", "Free-form date text")
	cmd.Flags().StringVar(&c.DateAttr, "date-attr", "", "Structured date value such as an ISO timestamp")
	cmd.Flags().StringVar(&c.VenueText, "venue", "", "Venue text")
	cmd.Flags().StringVar(&c.AddressText, "address", "", "Address text")
	cmd.Flags().StringVar(&c.CityHint, "city", "", "City hint")
	cmd.Flags().StringVar(&c.SourceURL, "url", "", "Source URL")
	cmd.Flags().StringVar(&c.Description, "description", "", "Description")
	cmd.Flags().StringVar(&c.PriceText, "price", "", "Price text")
	cmd.Flags().StringVar(&c.SourceID, "source", "cli", "Source identifier")
	cmd.Flags().StringVar(&flagCheckFormat, "format", "text", "Output format: text or json")

	cmd.MarkFlagRequired("title")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagCheckFormat, FormatText, FormatJSON)
	if err != nil {
		return err
	}
	a, err := loadApp()
	if err != nil {
		return err
	}

	c, _ := a.coordinator(nil, storage.NewMemoryStore(), nil)
	result := c.Classify(flagCheckCand)

	w := cmd.OutOrStdout()
	if format == FormatJSON {
		return writeJSON(w, result)
	}
	writeClassification(w, result)
	return nil
}

func writeClassification(w io.Writer, r ingest.Classification) {
	if !r.Accepted {
		fmt.Fprintf(w, "REJECTED: %s\n", r.Reason)
		fmt.Fprintf(w, "  Venue match: %s\n", r.Match)
		if r.DetectedCity != "" {
			fmt.Fprintf(w, "  Detected city: %s\n", r.DetectedCity)
		}
		return
	}

	e := r.Event
	fmt.Fprintf(w, "ACCEPTED: %s\n", e.Title)
	fmt.Fprintf(w, "  Start:       %s\n", formatStart(e))
	fmt.Fprintf(w, "  Venue:       %s (%s)\n", e.Venue.Name, r.Match)
	if e.Venue.Address != "" {
		fmt.Fprintf(w, "  Address:     %s\n", e.Venue.Address)
	}
	fmt.Fprintf(w, "  City:        %s\n", e.City)
	fmt.Fprintf(w, "  Category:    %s\n", e.Category)
	if e.Price != "" {
		fmt.Fprintf(w, "  Price:       %s\n", e.Price)
	}
	fmt.Fprintf(w, "  Fingerprint: %s\n", e.Fingerprint)
}
