package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/discovr-ingest/internal/venue"
)

var (
	flagVenuesCity   string
	flagVenuesFormat string
)

func newVenuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venues",
		Short: "List the known-venue table",
		Long: `List the curated venues the resolver matches against: the built-in table, or
venues_file when one is configured.`,
		Args: cobra.NoArgs,
		RunE: runVenues,
	}

	cmd.Flags().StringVar(&flagVenuesCity, "city", "", "Only list venues in this city (name, keyword or code)")
	cmd.Flags().StringVar(&flagVenuesFormat, "format", "text", "Output format: text or yaml")

	return cmd
}

func runVenues(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(flagVenuesFormat, FormatText, FormatYAML)
	if err != nil {
		return err
	}
	a, err := loadApp()
	if err != nil {
		return err
	}

	t := a.table
	city := ""
	if flagVenuesCity != "" {
		if city = t.CanonicalCity(flagVenuesCity); city == "" {
			return fmt.Errorf("unknown city: %s", flagVenuesCity)
		}
	}
	return WriteVenues(cmd.OutOrStdout(), t, city, format)
}

// WriteVenues writes the table's venues, optionally limited to one canonical
// city, in the specified format.
func WriteVenues(w io.Writer, t *venue.Table, city string, format OutputFormat) error {
	switch format {
	case FormatYAML:
		if city == "" {
			return t.WriteYAML(w)
		}
		return writeVenueEntries(w, t.Entries(city))
	case FormatText:
		return writeVenuesText(w, t, city)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func writeVenueEntries(w io.Writer, entries []*venue.Entry) error {
	doc := struct {
		Venues []*venue.Entry `yaml:"venues"`
	}{Venues: entries}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding venues: %w", err)
	}
	return enc.Close()
}

func writeVenuesText(w io.Writer, t *venue.Table, only string) error {
	total := 0
	for _, c := range t.Cities() {
		if only != "" && c.Name != only {
			continue
		}
		entries := t.Entries(c.Name)
		fmt.Fprintf(w, "\n%s (%d venues):\n", c.Name, len(entries))
		for _, e := range entries {
			if e.Address != "" {
				fmt.Fprintf(w, "  %s, %s\n", e.Name, e.Address)
			} else {
				fmt.Fprintf(w, "  %s\n", e.Name)
			}
		}
		total += len(entries)
	}
	fmt.Fprintf(w, "\nTotal: %d venues\n", total)
	return nil
}
