package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate  SortOrder = "date"
	SortByCity  SortOrder = "city"
	SortByTitle SortOrder = "title"
)

func parseSortOrder(value string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(value))); o {
	case SortByDate, SortByCity, SortByTitle:
		return o, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be 'date', 'city' or 'title')", value)
	}
}

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []*event.NormalizedEvent, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByCity:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].City != events[j].City {
				return events[i].City < events[j].City
			}
			// If cities are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			// If titles are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate reports whether i starts before j. Ties fall back to city
// then title so the order is stable across runs.
func compareByDate(i, j *event.NormalizedEvent) bool {
	if !i.StartTime.Equal(j.StartTime) {
		return i.StartTime.Before(j.StartTime)
	}
	if i.City != j.City {
		return i.City < j.City
	}
	return strings.ToLower(i.Title) < strings.ToLower(j.Title)
}
