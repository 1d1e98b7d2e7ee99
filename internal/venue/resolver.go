package venue

import (
	"strings"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// Match describes how a venue was resolved.
type Match string

const (
	MatchExact      Match = "exact"      // name or alias in the hint city's table
	MatchNormalized Match = "normalized" // venue key in the hint city's table
	MatchCache      Match = "cache"      // discovered earlier in this run
	MatchOtherCity  Match = "other_city" // only known in a different city
	MatchInferred   Match = "inferred"   // minimal record built from the raw text
	MatchNone       Match = "none"       // no venue text at all
)

// Resolution is the outcome of resolving one candidate's venue.
type Resolution struct {
	Venue event.Venue
	Match Match

	// Contaminated is set when the venue or address text points at a city other
	// than the hint. DetectedCity names that city.
	Contaminated bool
	DetectedCity string
}

// Resolver maps raw venue text to canonical records. The table is shared
// read-only; the cache is the only mutable state.
type Resolver struct {
	table *Table
	cache *Cache
}

// NewResolver creates a resolver over t with a fresh run-scoped cache.
func NewResolver(t *Table) *Resolver {
	return &Resolver{table: t, cache: NewCache(t)}
}

// Table returns the authoritative table.
func (r *Resolver) Table() *Table { return r.table }

// Cache returns the run-scoped cache of discovered venues.
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve returns the canonical venue for venueText in the hinted city.
// addressText is the raw address supplied by the source, if any.
func (r *Resolver) Resolve(venueText, addressText, cityHint string) Resolution {
	name, tagCity := r.table.displayName(venueText)

	city := r.table.CanonicalCity(cityHint)
	if city == "" {
		city = r.inferCity(venueText, addressText, name)
	}

	res := Resolution{Match: MatchNone}
	flag := func(other string) {
		if !res.Contaminated {
			res.Contaminated = true
			res.DetectedCity = other
		}
	}
	if tagCity != "" && city != "" && tagCity != city {
		flag(tagCity)
	}

	if name != "" && city != "" {
		entry, match := r.lookup(city, name)
		if entry != nil {
			res.Venue = entry.Record()
			res.Match = match
			// A curated name may itself contain another city's keyword
			// ("Hollywood Theatre"), so only the address is scanned.
			if foreign := r.table.DetectCities(addressText, city); len(foreign) > 0 {
				flag(foreign[0])
			}
			return res
		}

		if other := r.table.findElsewhere(city, name); other != nil {
			res.Venue = other.Record()
			res.Match = MatchOtherCity
			flag(other.City)
			return res
		}
	}

	if city != "" {
		if foreign := r.table.DetectCities(venueText+" "+addressText, city); len(foreign) > 0 {
			flag(foreign[0])
		}
	}

	res.Venue = event.Venue{Name: name, City: city}
	if LooksLikeStreetAddress(addressText) {
		res.Venue.Address = strings.Join(strings.Fields(addressText), " ")
	}
	if name != "" {
		res.Match = MatchInferred
	}

	if !res.Contaminated && name != "" && city != "" && res.Venue.Address != "" {
		r.cache.Add(&Entry{Name: name, City: city, Address: res.Venue.Address})
	}
	return res
}

func (r *Resolver) lookup(city, name string) (*Entry, Match) {
	if e := r.table.findExact(city, name); e != nil {
		return e, MatchExact
	}
	if e := r.table.findNormalized(city, name); e != nil {
		return e, MatchNormalized
	}
	if e := r.cache.Get(city, name); e != nil {
		return e, MatchCache
	}
	return nil, ""
}

// inferCity picks a city when the hint is missing or unknown: a single city
// named in the venue or address text, else the city whose table holds the
// venue.
func (r *Resolver) inferCity(venueText, addressText, name string) string {
	if found := r.table.DetectCities(venueText+" "+addressText, ""); len(found) == 1 {
		return found[0]
	}
	if name == "" {
		return ""
	}
	if e := r.table.findElsewhere("", name); e != nil {
		return e.City
	}
	return ""
}
