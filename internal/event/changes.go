package event

import (
	"time"
)

// Change types reported by DetectChanges.
const (
	ChangeNew   = "new"
	ChangeTitle = "title"
	ChangeStart = "start"
	ChangeVenue = "venue"
	ChangeCity  = "city"
)

// EventChange represents a field-level difference between the persisted and
// incoming versions of one fingerprint.
type EventChange struct {
	Fingerprint string    `json:"fingerprint"`
	ChangeType  string    `json:"change_type"`
	OldValue    string    `json:"old_value"`
	NewValue    string    `json:"new_value"`
	DetectedAt  time.Time `json:"detected_at"`
}

// DetectChanges compares two versions of an event and returns detected changes.
// Fingerprints collide on normalized text, so title and venue changes here are
// cosmetic (case, punctuation) while start changes are time-of-day only.
func DetectChanges(previous, current *NormalizedEvent) []*EventChange {
	now := time.Now().UTC()

	if previous == nil {
		return []*EventChange{{
			Fingerprint: current.Fingerprint,
			ChangeType:  ChangeNew,
			NewValue:    current.Title,
			DetectedAt:  now,
		}}
	}

	var changes []*EventChange
	add := func(kind, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, &EventChange{
			Fingerprint: current.Fingerprint,
			ChangeType:  kind,
			OldValue:    oldValue,
			NewValue:    newValue,
			DetectedAt:  now,
		})
	}

	add(ChangeTitle, previous.Title, current.Title)
	add(ChangeStart, previous.StartTime.UTC().Format(time.RFC3339), current.StartTime.UTC().Format(time.RFC3339))
	add(ChangeVenue, previous.Venue.Name, current.Venue.Name)
	add(ChangeCity, previous.City, current.City)

	return changes
}
