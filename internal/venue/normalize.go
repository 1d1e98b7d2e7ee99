package venue

import (
	"regexp"
	"strings"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// Generic words that sites append to or drop from venue names at will.
var venueSuffixes = []string{"theatre", "theater", "centre", "center"}

// venueKey is the comparison form for normalized matching: NormalizeKey with a
// leading "the", trailing generic suffixes and trailing city tags removed
// ("The Orpheum Theatre, Vancouver" -> "orpheum").
func (t *Table) venueKey(name string) string {
	words := strings.Fields(event.NormalizeKey(name))
	if len(words) > 1 && words[0] == "the" {
		words = words[1:]
	}

	for changed := true; changed && len(words) > 1; {
		changed = false
		last := words[len(words)-1]
		for _, s := range venueSuffixes {
			if last == s {
				words = words[:len(words)-1]
				changed = true
				break
			}
		}
		if changed {
			continue
		}
		if n := t.trailingCityWords(words); n > 0 && n < len(words) {
			words = words[:len(words)-n]
			changed = true
		}
	}
	return strings.Join(words, " ")
}

// trailingCityWords returns how many trailing words of words spell a known
// city name or keyword.
func (t *Table) trailingCityWords(words []string) int {
	best := 0
	for _, c := range t.cities {
		for _, kw := range append([]string{c.Name}, c.Keywords...) {
			kwWords := strings.Fields(event.NormalizeKey(kw))
			n := len(kwWords)
			if n == 0 || n > len(words) || n <= best {
				continue
			}
			if strings.Join(words[len(words)-n:], " ") == strings.Join(kwWords, " ") {
				best = n
			}
		}
	}
	return best
}

var cityTagRe = regexp.MustCompile(`\s*[,(\-–]\s*[^,()\-–]+\)?\s*$`)

// displayName collapses whitespace in a raw venue name and splits off a
// trailing city tag ("Fortune Sound Club, Vancouver"). tagCity is the canonical
// name of the tagged city, or "" when there is no recognizable tag.
func (t *Table) displayName(raw string) (name, tagCity string) {
	name = strings.Join(strings.Fields(raw), " ")
	if loc := cityTagRe.FindStringIndex(name); loc != nil && loc[0] > 0 {
		tag := strings.Trim(name[loc[0]:], " ,()-–")
		if c := t.lookupCity(tag); c != nil {
			return strings.TrimSpace(name[:loc[0]]), c.Name
		}
	}
	return name, ""
}

// mask removes every occurrence of words from the padded normalized text.
func mask(padded string, words []string) string {
	for _, w := range words {
		k := event.NormalizeKey(w)
		if k == "" {
			continue
		}
		pad := " " + k + " "
		for strings.Contains(padded, pad) {
			padded = strings.ReplaceAll(padded, pad, " ")
		}
	}
	return padded
}

// DetectCities returns the known cities whose keywords or address codes appear
// in text, in table order. Keywords of the exclude city are masked before
// scanning.
func (t *Table) DetectCities(text, exclude string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	padded := " " + event.NormalizeKey(text) + " "
	if c := t.lookupCity(exclude); c != nil {
		padded = mask(padded, append([]string{c.Name}, c.Keywords...))
		exclude = c.Name
	}

	var found []string
	for _, c := range t.cities {
		if c.Name == exclude {
			continue
		}
		if containsAny(padded, append([]string{c.Name}, c.Keywords...)) || (c.codeRe != nil && c.codeRe.MatchString(text)) {
			found = append(found, c.Name)
		}
	}
	return found
}

func containsAny(padded string, words []string) bool {
	for _, w := range words {
		if k := event.NormalizeKey(w); k != "" && strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

var streetRe = regexp.MustCompile(`(?i)\b\d+[a-z]?\s+(?:[\w.'-]+\s+){0,4}(?:st|street|ave|av|avenue|rd|road|blvd|boulevard|dr|drive|way|lane|ln|pl|place|plaza|cres|crescent|hwy|highway|sq|square|pkwy|parkway|trail|ct|court|terrace|row|rise)\b|\b\d+,?\s+(?:rue|boul|boulevard|avenue|av|chemin|place)\b`)

// LooksLikeStreetAddress reports whether s contains a civic number followed by
// a street name.
func LooksLikeStreetAddress(s string) bool {
	return streetRe.MatchString(s)
}
