package event

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeKey lowercases s, replaces every non-letter/non-digit rune with a
// space and collapses whitespace. It is the comparison form for titles and
// venue names.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var soldOutRe = regexp.MustCompile(`(?i)\*+\s*sold\s*out\s*\*+`)

// CleanTitle collapses whitespace and strips "*SOLD OUT*" style markers.
func CleanTitle(title string) string {
	title = soldOutRe.ReplaceAllString(title, " ")
	return strings.Join(strings.Fields(title), " ")
}

var priceRe = regexp.MustCompile(`\$\s?(\d+(?:\.\d{1,2})?)`)

// NormalizePrice reduces scraped price text to "Free", "$N" (the first amount
// found) or "" when nothing usable is present.
func NormalizePrice(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		amount := strings.TrimSuffix(strings.TrimSuffix(m[1], ".00"), ".0")
		if amount == "0" {
			return "Free"
		}
		return "$" + amount
	}
	if strings.Contains(strings.ToLower(text), "free") {
		return "Free"
	}
	return ""
}

// DefaultCategory is assigned when neither the hint nor any keyword matches.
const DefaultCategory = "general"

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"film", []string{"movie", "film", "cinema", "screening"}},
	{"music", []string{"concert", "music", "live band", "dj", "jazz", "symphony", "orchestra"}},
	{"comedy", []string{"comedy", "stand-up", "standup", "improv"}},
	{"theatre", []string{"theatre", "theater", "musical", "play", "opera", "ballet"}},
	{"art", []string{"art", "exhibition", "gallery", "museum"}},
	{"workshop", []string{"workshop", "class", "learn", "education"}},
	{"market", []string{"market", "fair", "bazaar"}},
	{"sports", []string{"sport", "game", "tournament", "match", "race"}},
	{"family", []string{"kids", "children", "family"}},
	{"food", []string{"food", "taste", "tasting", "brunch", "wine", "beer"}},
	{"festival", []string{"festival", "fest"}},
	{"outdoor", []string{"outdoor", "park", "hike"}},
	{"nightlife", []string{"party", "club night", "nightclub"}},
}

// KnownCategory reports whether c is one of the categories Categorize emits.
func KnownCategory(c string) bool {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == DefaultCategory {
		return true
	}
	for _, kw := range categoryKeywords {
		if kw.category == c {
			return true
		}
	}
	return false
}

// Categorize returns the source's hint when it is a known category, otherwise
// the first category whose keywords appear as whole words in the title or
// description, otherwise DefaultCategory.
func Categorize(title, description, hint string) string {
	if KnownCategory(hint) {
		return strings.ToLower(strings.TrimSpace(hint))
	}
	text := " " + NormalizeKey(title+" "+description) + " "
	for _, kw := range categoryKeywords {
		for _, w := range kw.words {
			if strings.Contains(text, " "+NormalizeKey(w)+" ") {
				return kw.category
			}
		}
	}
	return DefaultCategory
}
