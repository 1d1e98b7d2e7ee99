package event

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnparseableDate is returned when neither a structured value nor any of the
// month-name patterns yield a date. Callers must drop the candidate.
var ErrUnparseableDate = errors.New("unparseable date")

// DateResult is the canonical interpretation of a candidate's date fields.
type DateResult struct {
	Start      time.Time  // UTC
	End        *time.Time // UTC, only for explicit ranges
	Structured bool       // came from a datetime/data-date/ISO value
}

// DateParser converts raw date text into canonical UTC timestamps.
// Wall-clock values without an explicit offset are read in Location.
type DateParser struct {
	Location *time.Location
	Now      func() time.Time
}

// NewDateParser returns a parser reading wall-clock times in loc (UTC if nil).
func NewDateParser(loc *time.Location) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{Location: loc, Now: time.Now}
}

// ParseDate parses free text relative to now, reading wall-clock times as UTC.
func ParseDate(dateText string, now time.Time) (time.Time, error) {
	p := &DateParser{Location: time.UTC, Now: func() time.Time { return now }}
	res, err := p.Parse("", dateText)
	if err != nil {
		return time.Time{}, err
	}
	return res.Start, nil
}

var structuredLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse resolves a candidate's structured attribute (if any) and free date text.
// The structured attribute wins whenever it parses.
func (p *DateParser) Parse(dateAttr, dateText string) (DateResult, error) {
	if t, ok := p.parseStructured(dateAttr); ok {
		return DateResult{Start: t, Structured: true}, nil
	}

	if strings.Contains(dateText, "<") {
		attr, text := extractDateMarkup(dateText)
		if t, ok := p.parseStructured(attr); ok {
			return DateResult{Start: t, Structured: true}, nil
		}
		dateText = text
	}

	if t, ok := p.parseStructured(dateText); ok {
		return DateResult{Start: t, Structured: true}, nil
	}

	cleaned := CleanDateText(dateText)
	if cleaned == "" {
		return DateResult{}, ErrUnparseableDate
	}

	if res, ok := p.parsePatterns(cleaned); ok {
		return res, nil
	}
	return DateResult{}, ErrUnparseableDate
}

func (p *DateParser) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p *DateParser) now() time.Time {
	if p.Now == nil {
		return time.Now().In(p.location())
	}
	return p.Now().In(p.location())
}

func (p *DateParser) parseStructured(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range structuredLayouts {
		t, err := time.ParseInLocation(layout, value, p.location())
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// extractDateMarkup pulls the first datetime or data-date attribute out of an
// HTML fragment and returns it together with the fragment's visible text.
func extractDateMarkup(fragment string) (attr, text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fragment
	}
	for _, name := range []string{"datetime", "data-date"} {
		if v, ok := doc.Find("[" + name + "]").First().Attr(name); ok && strings.TrimSpace(v) != "" {
			attr = v
			break
		}
	}
	return attr, doc.Text()
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	ordinalRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	weekdayRe    = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues?|wed|thu(?:rs?)?|fri|sat|sun)\b\.?,?`)
	timeTokenRe  = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)|\b\d{1,2}:\d{2}\b`)
	separatorRe  = regexp.MustCompile(`[@|•·]`)
)

// CleanDateText strips layout noise from scraped date text: newlines and runs of
// whitespace, ordinal suffixes, weekday names, separators and repeated times.
func CleanDateText(s string) string {
	s = separatorRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = weekdayRe.ReplaceAllString(s, " ")

	seen := make(map[string]bool)
	s = timeTokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		key := strings.ToLower(strings.ReplaceAll(tok, " ", ""))
		if seen[key] {
			return ""
		}
		seen[key] = true
		return tok
	})

	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,")
}

const (
	monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`
	rangeSep     = `(?:-|–|—|to|through|until)`
)

var (
	rangeRe    = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2})(?:\s*,?\s*(\d{4}))?\s*` + rangeSep + `\s*(?:` + monthPattern + `\s+)?(\d{1,2})\b(?:\s*,?\s*(\d{4})\b)?`)
	dayRangeRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*` + rangeSep + `\s*(\d{1,2})\s+` + monthPattern + `(?:\s*,?\s*(\d{4})\b)?`)
	monthDayRe = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2})\b(?:\s*,?\s*(\d{4})\b)?`)
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+` + monthPattern + `(?:\s*,?\s*(\d{4})\b)?`)
	numericRe  = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4}|\d{2})\b`)
	meridiemRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)`)
	clockRe    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)

	// A day number followed by one of these was really an hour ("Jan 15 - 7 PM").
	hourSuffixRe = regexp.MustCompile(`(?i)^\s*(?::|am\b|pm\b|a\.m\.|p\.m\.)`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func monthFromName(name string) time.Month {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	return monthsByPrefix[name[:3]]
}

func (p *DateParser) parsePatterns(s string) (DateResult, bool) {
	if m := rangeRe.FindStringSubmatchIndex(s); m != nil && !hourSuffixRe.MatchString(s[m[1]:]) {
		g := submatches(s, m)
		startMonth := monthFromName(g[1])
		endMonth := startMonth
		if g[4] != "" {
			endMonth = monthFromName(g[4])
		}
		if res, ok := p.buildRange(dateSpan{g[3], startMonth, g[2]}, dateSpan{g[6], endMonth, g[5]}, g[4] != "", outside(s, m)); ok {
			return res, true
		}
	}

	if m := dayRangeRe.FindStringSubmatchIndex(s); m != nil && (m[0] == 0 || s[m[0]-1] != ':') {
		g := submatches(s, m)
		month := monthFromName(g[3])
		if res, ok := p.buildRange(dateSpan{"", month, g[1]}, dateSpan{g[4], month, g[2]}, false, outside(s, m)); ok {
			return res, true
		}
	}

	if m := monthDayRe.FindStringSubmatchIndex(s); m != nil && !hourSuffixRe.MatchString(s[m[1]:]) {
		g := submatches(s, m)
		if t, ok := p.buildDate(g[3], monthFromName(g[1]), g[2], outside(s, m)); ok {
			return DateResult{Start: t}, true
		}
	}

	if m := dayMonthRe.FindStringSubmatchIndex(s); m != nil {
		g := submatches(s, m)
		if t, ok := p.buildDate(g[3], monthFromName(g[2]), g[1], outside(s, m)); ok {
			return DateResult{Start: t}, true
		}
	}

	if m := numericRe.FindStringSubmatchIndex(s); m != nil {
		g := submatches(s, m)
		year := g[3]
		if len(year) == 2 {
			year = "20" + year
		}
		month, err := strconv.Atoi(g[1])
		if err == nil && month >= 1 && month <= 12 {
			if t, ok := p.buildDate(year, time.Month(month), g[2], outside(s, m)); ok {
				return DateResult{Start: t}, true
			}
		}
	}

	return DateResult{}, false
}

func submatches(s string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}

// outside returns s with the match at idx blanked out, leaving whatever text
// around the date may carry a time of day.
func outside(s string, idx []int) string {
	return s[:idx[0]] + " " + s[idx[1]:]
}

// dateSpan is one end of a matched range as raw groups.
type dateSpan struct {
	year  string
	month time.Month
	day   string
}

// buildRange resolves both ends of a range. An end that falls before its
// start is only accepted when the end names its own month (Dec 28 - Jan 3),
// in which case it belongs to the following year; otherwise the text is not
// a range and false is returned. A year given on one end only applies to both.
func (p *DateParser) buildRange(start, end dateSpan, endNamesMonth bool, rest string) (DateResult, bool) {
	startDay, err1 := strconv.Atoi(start.day)
	endDay, err2 := strconv.Atoi(end.day)
	if err1 != nil || err2 != nil {
		return DateResult{}, false
	}
	wraps := end.month < start.month || (end.month == start.month && endDay <= startDay)
	if wraps && (!endNamesMonth || end.month == start.month) {
		return DateResult{}, false
	}

	startYear := start.year
	if startYear == "" && end.year != "" {
		startYear = end.year
		if wraps {
			y, err := strconv.Atoi(end.year)
			if err != nil {
				return DateResult{}, false
			}
			startYear = strconv.Itoa(y - 1)
		}
	}
	from, ok := p.buildDate(startYear, start.month, start.day, rest)
	if !ok {
		return DateResult{}, false
	}

	endYear := from.In(p.location()).Year()
	if wraps {
		endYear++
	}
	to, ok := p.buildDate(strconv.Itoa(endYear), end.month, end.day, "")
	if !ok {
		return DateResult{}, false
	}
	return DateResult{Start: from, End: &to}, true
}

// buildDate assembles a UTC timestamp from matched groups. An empty year is
// inferred as the next occurrence of the month: months already behind the
// current one roll over to next year. rest is scanned for a time of day.
func (p *DateParser) buildDate(yearText string, month time.Month, dayText, rest string) (time.Time, bool) {
	if month == 0 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var year int
	if yearText != "" {
		year, err = strconv.Atoi(yearText)
		if err != nil {
			return time.Time{}, false
		}
	} else {
		year = InferYear(month, p.now())
	}

	hour, minute := parseTimeOfDay(rest)
	t := time.Date(year, month, day, hour, minute, 0, 0, p.location())
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false // e.g. Feb 30
	}
	return t.UTC(), true
}

// InferYear returns the year of the next occurrence of month relative to now:
// a month earlier than now's month belongs to next year.
func InferYear(month time.Month, now time.Time) int {
	if month < now.Month() {
		return now.Year() + 1
	}
	return now.Year()
}

// parseTimeOfDay finds the first "7pm", "7:30 PM" or "19:30" in s.
// Returns midnight when none is present.
func parseTimeOfDay(s string) (hour, minute int) {
	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		pm := strings.HasPrefix(strings.ToLower(m[3]), "p")
		switch {
		case h < 1 || h > 12 || minute > 59:
			return 0, 0
		case pm && h < 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return h, minute
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute
	}
	return 0, 0
}

// IsStale reports whether start lies before now minus the grace window.
func IsStale(start, now time.Time, grace time.Duration) bool {
	return start.Before(now.Add(-grace))
}
