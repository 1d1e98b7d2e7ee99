package event

import (
	"crypto/sha1"
	"fmt"
	"time"
)

// Fingerprint creates the deterministic dedup key for an event from its title,
// canonical start time and canonical venue name. Case, punctuation and
// whitespace are ignored and the date is truncated to the calendar day of
// start in its own location, so callers pass start in the zone the listing's
// wall-clock dates were read in. The same listing scraped from two sources then
// converges on one key whether or not a source gave a time of day.
func Fingerprint(title string, start time.Time, venueName string) string {
	h := sha1.New()
	h.Write([]byte(NormalizeKey(title) + "|" + start.Format("2006-01-02") + "|" + NormalizeKey(venueName)))
	return fmt.Sprintf("%x", h.Sum(nil))
}
