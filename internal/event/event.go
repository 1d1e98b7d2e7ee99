package event

import (
	"time"
)

// CandidateEvent is a raw listing as produced by a source collaborator.
// Every field except SourceID is untrusted.
type CandidateEvent struct {
	Title        string    `json:"title"`
	DateText     string    `json:"date_text,omitempty"`
	DateAttr     string    `json:"date_attr,omitempty"` // datetime / data-date attribute or ISO value
	VenueText    string    `json:"venue_text,omitempty"`
	AddressText  string    `json:"address_text,omitempty"`
	Description  string    `json:"description,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	SourceID     string    `json:"source_id"`
	CityHint     string    `json:"city_hint,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	PriceText    string    `json:"price_text,omitempty"`
	CategoryHint string    `json:"category_hint,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat" yaml:"lat"`
	Lng float64 `json:"lng" bson:"lng" yaml:"lng"`
}

// Venue is the canonical venue record attached to a normalized event.
// Address is empty unless it came from the curated table or the source itself.
type Venue struct {
	Name        string       `json:"name" bson:"name" yaml:"name"`
	Address     string       `json:"address,omitempty" bson:"address,omitempty" yaml:"address,omitempty"`
	City        string       `json:"city" bson:"city" yaml:"city"`
	Coordinates *Coordinates `json:"coordinates,omitempty" bson:"coordinates,omitempty" yaml:"coordinates,omitempty"`
}

// NormalizedEvent is the only shape of event that is ever persisted.
type NormalizedEvent struct {
	Fingerprint    string     `json:"fingerprint" bson:"fingerprint"`
	DisplayID      string     `json:"id" bson:"display_id"`
	Title          string     `json:"title" bson:"title"`
	StartTime      time.Time  `json:"start_time" bson:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Venue          Venue      `json:"venue" bson:"venue"`
	City           string     `json:"city" bson:"city"`
	Category       string     `json:"category" bson:"category"`
	Description    string     `json:"description,omitempty" bson:"description,omitempty"`
	ImageURL       string     `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Price          string     `json:"price,omitempty" bson:"price,omitempty"`
	SourceID       string     `json:"source_id" bson:"source_id"`
	Sources        []string   `json:"sources" bson:"sources"`
	SourceURL      string     `json:"source_url,omitempty" bson:"source_url,omitempty"`
	SourceModified time.Time  `json:"source_modified,omitempty" bson:"source_modified,omitempty"`
	FirstSeen      time.Time  `json:"first_seen" bson:"first_seen"`
	LastUpdated    time.Time  `json:"last_updated" bson:"last_updated"`
}

// IsStalerThan reports whether e carries a source-reported modification time
// strictly older than other's. Missing timestamps never count as staler.
func (e *NormalizedEvent) IsStalerThan(other *NormalizedEvent) bool {
	if e.SourceModified.IsZero() || other.SourceModified.IsZero() {
		return false
	}
	return e.SourceModified.Before(other.SourceModified)
}

// MergeSources returns the union of a and b, preserving first-seen order.
func MergeSources(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy of e.
func (e *NormalizedEvent) Clone() *NormalizedEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}
	if e.Venue.Coordinates != nil {
		coords := *e.Venue.Coordinates
		c.Venue.Coordinates = &coords
	}
	c.Sources = append([]string(nil), e.Sources...)
	return &c
}
