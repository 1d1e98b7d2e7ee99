package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/go-resty/resty/v2"
	"github.com/teambition/rrule-go"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/logger"
)

// MaxOccurrences caps how many instances of one recurring event are emitted.
const MaxOccurrences = 100

// ICSSource reads an iCalendar feed. Recurring events are expanded between
// now and now+Horizon.
type ICSSource struct {
	cfg    Config
	client *resty.Client
	Now    func() time.Time
}

// NewICSSource creates an ICSSource from c.
func NewICSSource(c Config) *ICSSource {
	return &ICSSource{cfg: c, client: newClient(c), Now: time.Now}
}

// Name implements Source.
func (s *ICSSource) Name() string { return s.cfg.Name }

// Fetch implements Source.
func (s *ICSSource) Fetch(ctx context.Context) ([]event.CandidateEvent, error) {
	body, err := fetchBody(ctx, s.client, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.parseCalendar(body)
}

func (s *ICSSource) parseCalendar(body []byte) ([]event.CandidateEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar from %s: %w", s.cfg.Name, err)
	}

	now := s.Now()
	candidates := make([]event.CandidateEvent, 0)
	for _, ve := range cal.Events() {
		base, starts, err := s.occurrences(ve, now)
		if err != nil {
			logger.Warn("Skipping calendar entry", logger.Fields{
				"source": s.cfg.Name,
				"uid":    propValue(ve, ical.ComponentPropertyUniqueId),
				"error":  err.Error(),
			})
			continue
		}
		for _, start := range starts {
			cand := base
			cand.DateAttr = formatStart(start, isAllDay(ve))
			candidates = append(candidates, cand)
		}
	}
	return candidates, nil
}

// occurrences returns the candidate fields shared by every instance of ve,
// and the start time of each instance.
func (s *ICSSource) occurrences(ve *ical.VEvent, now time.Time) (event.CandidateEvent, []time.Time, error) {
	var start time.Time
	var err error
	if isAllDay(ve) {
		start, err = ve.GetAllDayStartAt()
	} else {
		start, err = ve.GetStartAt()
	}
	if err != nil {
		return event.CandidateEvent{}, nil, fmt.Errorf("reading DTSTART: %w", err)
	}

	venue, address := splitLocation(propValue(ve, ical.ComponentPropertyLocation))
	cand := event.CandidateEvent{
		Title:        propValue(ve, ical.ComponentPropertySummary),
		Description:  propValue(ve, ical.ComponentPropertyDescription),
		VenueText:    venue,
		AddressText:  address,
		SourceURL:    propValue(ve, ical.ComponentPropertyUrl),
		CategoryHint: firstCategory(propValue(ve, ical.ComponentPropertyCategories)),
	}
	if lm := propValue(ve, ical.ComponentPropertyLastModified); lm != "" {
		if t, err := time.Parse("20060102T150405Z", lm); err == nil {
			cand.LastModified = t
		}
	}
	if cand.SourceURL == "" {
		cand.SourceURL = s.cfg.URL
	}
	stamp(s.cfg, &cand)

	raw := propValue(ve, ical.ComponentPropertyRrule)
	if raw == "" {
		return cand, []time.Time{start}, nil
	}

	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return event.CandidateEvent{}, nil, fmt.Errorf("parsing RRULE %q: %w", raw, err)
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part), start.Location()); err == nil {
				set.ExDate(t)
			}
		}
	}

	starts := set.Between(now.In(start.Location()), now.Add(s.cfg.Horizon).In(start.Location()), true)
	if len(starts) > MaxOccurrences {
		starts = starts[:MaxOccurrences]
	}
	return cand, starts, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(textUnescaper.Replace(p.Value))
	}
	return ""
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)

func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// formatStart renders an occurrence for the date normalizer. All-day entries
// keep only their calendar date.
func formatStart(t time.Time, allDay bool) string {
	if allDay {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format(time.RFC3339)
}

// splitLocation splits "Venue, 123 Street, City" into venue and address.
func splitLocation(loc string) (venue, address string) {
	name, rest, found := strings.Cut(loc, ",")
	if !found {
		return strings.TrimSpace(loc), ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(rest)
}

func firstCategory(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
