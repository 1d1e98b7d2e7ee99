// Package calendar exports stored events as iCalendar feeds.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

const (
	// ProductID identifies the generator in exported calendars.
	ProductID = "-//discovr//discovr-ingest//EN"

	// UIDDomain is appended to display ids to form globally unique UIDs.
	UIDDomain = "discovr-ingest"

	// DefaultDuration is used for timed events without an end time.
	DefaultDuration = 2 * time.Hour
)

// GenerateICS renders a single-event calendar.
func GenerateICS(e *event.NormalizedEvent, now time.Time) string {
	return GenerateBulkICS([]*event.NormalizedEvent{e}, "", now)
}

// GenerateBulkICS renders events as one calendar named name. An empty slice
// yields an empty string.
func GenerateBulkICS(events []*event.NormalizedEvent, name string, now time.Time) string {
	if len(events) == 0 {
		return ""
	}
	return newCalendar(events, name, now).Serialize()
}

// WriteICS writes events as one calendar to w. Unlike GenerateBulkICS an empty
// slice still produces a valid, empty calendar.
func WriteICS(w io.Writer, events []*event.NormalizedEvent, name string, now time.Time) error {
	if err := newCalendar(events, name, now).SerializeTo(w); err != nil {
		return fmt.Errorf("writing calendar: %w", err)
	}
	return nil
}

func newCalendar(events []*event.NormalizedEvent, name string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := now.UTC()
	for _, e := range events {
		addEvent(cal, e, stamp)
	}
	return cal
}

func addEvent(cal *ical.Calendar, e *event.NormalizedEvent, stamp time.Time) {
	ve := cal.AddEvent(UID(e))
	ve.SetDtStampTime(stamp)
	if !e.LastUpdated.IsZero() {
		ve.SetModifiedAt(e.LastUpdated.UTC())
	}

	start := e.StartTime.UTC()
	if IsAllDay(e) {
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
	} else {
		end := start.Add(DefaultDuration)
		if e.EndTime != nil && e.EndTime.After(start) {
			end = e.EndTime.UTC()
		}
		ve.SetStartAt(start)
		ve.SetEndAt(end)
	}

	ve.SetSummary(e.Title)
	if loc := Location(e); loc != "" {
		ve.SetLocation(loc)
	}
	if desc := description(e); desc != "" {
		ve.SetDescription(desc)
	}
	if e.SourceURL != "" {
		ve.SetURL(e.SourceURL)
	}
	if e.Category != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, e.Category)
	}
	if c := e.Venue.Coordinates; c != nil {
		ve.SetProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%.6f;%.6f", c.Lat, c.Lng))
	}
	ve.SetStatus(ical.ObjectStatusConfirmed)
}

// UID returns the calendar UID for e. Display ids survive updates, so a
// re-exported feed updates entries in place.
func UID(e *event.NormalizedEvent) string {
	id := e.DisplayID
	if id == "" {
		id = e.Fingerprint
	}
	return id + "@" + UIDDomain
}

// IsAllDay reports whether e only carries a calendar date: a UTC-midnight
// start with no end time.
func IsAllDay(e *event.NormalizedEvent) bool {
	if e.EndTime != nil {
		return false
	}
	s := e.StartTime.UTC()
	return s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0
}

// Location joins the venue name, address and city, skipping parts already
// contained in the address.
func Location(e *event.NormalizedEvent) string {
	var parts []string
	if e.Venue.Name != "" {
		parts = append(parts, e.Venue.Name)
	}
	if e.Venue.Address != "" {
		parts = append(parts, e.Venue.Address)
	}
	if e.City != "" && !strings.Contains(strings.ToLower(e.Venue.Address), strings.ToLower(e.City)) {
		parts = append(parts, e.City)
	}
	return strings.Join(parts, ", ")
}

func description(e *event.NormalizedEvent) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(e.Description))
	if e.Price != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Price: " + e.Price)
	}
	if len(e.Sources) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Sources: " + strings.Join(e.Sources, ", "))
	}
	return b.String()
}
