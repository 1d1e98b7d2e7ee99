// Package filter decides whether a normalized candidate is a real event.
//
// The Validator applies an ordered list of rules and the first rule that
// matches determines the reject reason:
//   - title_length: fewer than 5 or more than 250 characters after cleaning
//   - junk_title: navigation artifacts, calls to action, calendar/map widget
//     labels, placeholders, date-only or letterless titles
//   - junk_url: map links and calendar aggregator stubs
//   - unparseable_date: the Date Normalizer gave up
//   - stale_date: the start lies before now minus the grace window
//   - cross_city: the venue resolver flagged contamination
//   - unknown_city: no known city could be determined
//
// Validation is pure: the same Input and clock always produce the same Verdict.
//
// Example usage:
//
//	v := filter.NewValidator(24*time.Hour, nil)
//	verdict := v.Validate(filter.Input{Title: "Jazz Night at Blue Note", Start: start, City: "Vancouver"})
//	if !verdict.Accepted {
//		log.Printf("rejected: %s", verdict.Reason)
//	}
package filter

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// Reason is the category a rejected candidate is counted under.
type Reason string

// Reject reasons in rule order.
const (
	ReasonTitleLength     Reason = "title_length"
	ReasonJunkTitle       Reason = "junk_title"
	ReasonJunkURL         Reason = "junk_url"
	ReasonUnparseableDate Reason = "unparseable_date"
	ReasonStaleDate       Reason = "stale_date"
	ReasonCrossCity       Reason = "cross_city"
	ReasonUnknownCity     Reason = "unknown_city"
)

// Reasons lists every reject reason in the order rules are applied.
func Reasons() []Reason {
	return []Reason{
		ReasonTitleLength,
		ReasonJunkTitle,
		ReasonJunkURL,
		ReasonUnparseableDate,
		ReasonStaleDate,
		ReasonCrossCity,
		ReasonUnknownCity,
	}
}

// Title length bounds, in runes.
const (
	MinTitleLength = 5
	MaxTitleLength = 250
)

// DefaultGrace is how far in the past a start time may lie before it is stale.
const DefaultGrace = 24 * time.Hour

// Input is everything the Validator looks at. It is assembled by the caller
// from the candidate and the results of the date and venue stages.
type Input struct {
	Title       string
	Description string
	SourceURL   string

	Start   time.Time
	DateErr error // non-nil when the date failed to resolve

	City      string // resolved city, empty when unknown
	CrossCity bool   // set by the venue resolver
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

func reject(r Reason) Verdict { return Verdict{Reason: r} }

// Validator applies the validity rules.
type Validator struct {
	Grace time.Duration
	Now   func() time.Time

	extraPhrases []string
}

// NewValidator creates a validator with the given grace window and additional
// case-insensitive junk phrases. A zero grace uses DefaultGrace.
func NewValidator(grace time.Duration, extraJunkPhrases []string) *Validator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	v := &Validator{Grace: grace, Now: time.Now}
	for _, p := range extraJunkPhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			v.extraPhrases = append(v.extraPhrases, p)
		}
	}
	return v
}

// Validate runs the rules in order and returns the first rejection, or an
// accepting verdict.
func (v *Validator) Validate(in Input) Verdict {
	title := event.CleanTitle(in.Title)

	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return reject(ReasonTitleLength)
	}
	if v.IsJunkTitle(title) {
		return reject(ReasonJunkTitle)
	}
	if IsJunkURL(in.SourceURL, in.Description) {
		return reject(ReasonJunkURL)
	}
	if in.DateErr != nil || in.Start.IsZero() {
		return reject(ReasonUnparseableDate)
	}
	if event.IsStale(in.Start, v.now(), v.Grace) {
		return reject(ReasonStaleDate)
	}
	if in.CrossCity {
		return reject(ReasonCrossCity)
	}
	if strings.TrimSpace(in.City) == "" {
		return reject(ReasonUnknownCity)
	}
	return Verdict{Accepted: true}
}

func (v *Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

var (
	// Site chrome that leaks into title selectors.
	navPrefixRe = regexp.MustCompile(`(?i)^(?:menu|nav|navigation|skip|login|log in|sign in|sign up|subscribe|search|view all|load more|read more|learn more|see all|show more|more info|buy tickets|get tickets)\b`)

	// Titles that are nothing but a call to action or a section heading.
	ctaRe = regexp.MustCompile(`(?i)^(?:tickets?|details|more details|register|register now|rsvp|book now|info|events|calendar|today|tomorrow|this week|this weekend|next week|this month|next month|(?:past|upcoming|all|featured) events)[\s.!:>»›]*$`)

	// Calendar and map widgets.
	widgetRe = regexp.MustCompile(`(?i)\b(?:google calendar|google maps|add to calendar|outlook calendar|ical|export to calendar)\b`)

	// Administrative pages and placeholders scraped as titles.
	placeholderRe = regexp.MustCompile(`(?i)^(?:tba|tbd|tbc|missing|no title|untitled|untitled event|n/a|none|null|undefined|contact us|about us|services|home|privacy policy|terms of service)$`)

	// "Friday, March 13th 2026" and similar with nothing else.
	dateOnlyRe = regexp.MustCompile(`(?i)^(?:(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?$`)
)

var badLiterals = []string{"(map)"}

// IsJunkTitle reports whether a cleaned title is a non-event artifact.
func (v *Validator) IsJunkTitle(title string) bool {
	title = strings.TrimSpace(title)
	if !strings.ContainsFunc(title, unicode.IsLetter) {
		return true
	}

	lower := strings.ToLower(title)
	for _, lit := range badLiterals {
		if strings.Contains(lower, lit) {
			return true
		}
	}
	for _, p := range v.extraPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return navPrefixRe.MatchString(title) ||
		ctaRe.MatchString(title) ||
		widgetRe.MatchString(title) ||
		placeholderRe.MatchString(title) ||
		dateOnlyRe.MatchString(title)
}

var junkURLRe = regexp.MustCompile(`(?i)(?:maps\.google\.|google\.[a-z.]+/maps|goo\.gl/maps|maps\.app\.goo\.gl|calendar\.google\.com)`)

// IsJunkURL reports whether the source URL points at a map or calendar widget
// rather than an event page. Aggregator "calendar/event" links are junk only
// when the listing carries no description.
func IsJunkURL(sourceURL, description string) bool {
	if sourceURL == "" {
		return false
	}
	if junkURLRe.MatchString(sourceURL) {
		return true
	}
	return strings.Contains(strings.ToLower(sourceURL), "calendar/event") && strings.TrimSpace(description) == ""
}
