package event

import (
	"reflect"
	"testing"
	"time"
)

func TestFingerprint(t *testing.T) {
	day := time.Date(2026, time.January, 15, 20, 0, 0, 0, time.UTC)
	base := Fingerprint("Jazz Night at Blue Note", day, "Blue Note")

	t.Run("idempotent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if got := Fingerprint("Jazz Night at Blue Note", day, "Blue Note"); got != base {
				t.Fatalf("Fingerprint() = %q, want %q", got, base)
			}
		}
	})

	t.Run("hex sha1", func(t *testing.T) {
		if len(base) != 40 {
			t.Errorf("len(Fingerprint()) = %d, want 40", len(base))
		}
	})

	collide := []struct {
		name  string
		title string
		start time.Time
		venue string
	}{
		{"case", "JAZZ NIGHT AT BLUE NOTE", day, "blue note"},
		{"whitespace", "  Jazz   Night at\nBlue Note ", day, " Blue  Note"},
		{"punctuation", "Jazz Night, at Blue-Note!", day, "Blue Note."},
		{"time of day", "Jazz Night at Blue Note", day.Add(-19 * time.Hour), "Blue Note"},
		{"same instant in a zone on the same day", "Jazz Night at Blue Note", day.In(time.FixedZone("X", 3*3600)), "Blue Note"},
		{"local evening on the same calendar day", "Jazz Night at Blue Note", time.Date(2026, time.January, 15, 20, 0, 0, 0, time.FixedZone("PST", -8*3600)), "Blue Note"},
	}
	for _, tt := range collide {
		t.Run("collides on "+tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.title, tt.start, tt.venue); got != base {
				t.Errorf("Fingerprint(%q, %v, %q) = %q, want %q", tt.title, tt.start, tt.venue, got, base)
			}
		})
	}

	differ := []struct {
		name  string
		title string
		start time.Time
		venue string
	}{
		{"other day", "Jazz Night at Blue Note", day.AddDate(0, 0, 1), "Blue Note"},
		{"same instant past local midnight", "Jazz Night at Blue Note", day.In(time.FixedZone("X", 5*3600)), "Blue Note"},
		{"other venue", "Jazz Night at Blue Note", day, "Red Room"},
		{"other title", "Jazz Brunch at Blue Note", day, "Blue Note"},
	}
	for _, tt := range differ {
		t.Run("differs on "+tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.title, tt.start, tt.venue); got == base {
				t.Errorf("Fingerprint(%q, %v, %q) collided with base", tt.title, tt.start, tt.venue)
			}
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Commodore Ballroom", "the commodore ballroom"},
		{"  Rickshaw   Theatre!! ", "rickshaw theatre"},
		{"Café-Théâtre, Montréal", "café théâtre montréal"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jazz \n Night  ", "Jazz Night"},
		{"*SOLD OUT* Arkells", "Arkells"},
		{"Arkells ** Sold Out **", "Arkells"},
		{"Plain", "Plain"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CleanTitle(tt.in); got != tt.want {
				t.Errorf("CleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"FREE admission", "Free"},
		{"$0.00", "Free"},
		{"Tickets $25.00 + fees", "$25"},
		{"$ 19.50 - $40", "$19.50"},
		{"Pay what you can", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizePrice(tt.in); got != tt.want {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		hint        string
		want        string
	}{
		{"known hint wins", "Jazz Night", "", "Comedy", "comedy"},
		{"unknown hint ignored", "Jazz Night", "", "misc", "music"},
		{"description keyword", "Saturday Special", "An outdoor movie screening", "", "film"},
		{"whole words only", "Musical Chairs", "", "", "theatre"},
		{"default", "Something Happening", "", "", DefaultCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.title, tt.description, tt.hint); got != tt.want {
				t.Errorf("Categorize(%q, %q, %q) = %q, want %q", tt.title, tt.description, tt.hint, got, tt.want)
			}
		})
	}
}

func TestMergeSources(t *testing.T) {
	got := MergeSources([]string{"a", "b"}, []string{"b", "", "c", "a"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeSources() = %v, want %v", got, want)
	}
}

func TestNormalizedEvent_IsStalerThan(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	tests := []struct {
		name     string
		incoming time.Time
		existing time.Time
		want     bool
	}{
		{"older", t1, t2, true},
		{"newer", t2, t1, false},
		{"equal", t1, t1, false},
		{"incoming unknown", time.Time{}, t2, false},
		{"existing unknown", t1, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &NormalizedEvent{SourceModified: tt.incoming}
			ex := &NormalizedEvent{SourceModified: tt.existing}
			if got := in.IsStalerThan(ex); got != tt.want {
				t.Errorf("IsStalerThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectChanges(t *testing.T) {
	start := time.Date(2026, 2, 1, 19, 0, 0, 0, time.UTC)
	prev := &NormalizedEvent{Fingerprint: "fp", Title: "Arkells", StartTime: start, Venue: Venue{Name: "Rogers Arena"}, City: "Vancouver"}

	t.Run("new event", func(t *testing.T) {
		changes := DetectChanges(nil, prev)
		if len(changes) != 1 || changes[0].ChangeType != ChangeNew {
			t.Fatalf("DetectChanges(nil, ...) = %+v, want single %q change", changes, ChangeNew)
		}
	})

	t.Run("no changes", func(t *testing.T) {
		cur := *prev
		if changes := DetectChanges(prev, &cur); len(changes) != 0 {
			t.Errorf("DetectChanges() = %d changes, want 0", len(changes))
		}
	})

	t.Run("title and start", func(t *testing.T) {
		cur := *prev
		cur.Title = "ARKELLS"
		cur.StartTime = start.Add(30 * time.Minute)
		changes := DetectChanges(prev, &cur)
		if len(changes) != 2 {
			t.Fatalf("DetectChanges() = %d changes, want 2", len(changes))
		}
		if changes[0].ChangeType != ChangeTitle || changes[1].ChangeType != ChangeStart {
			t.Errorf("DetectChanges() types = %q, %q; want %q, %q", changes[0].ChangeType, changes[1].ChangeType, ChangeTitle, ChangeStart)
		}
	})
}

func TestNormalizedEvent_Clone(t *testing.T) {
	end := time.Date(2026, 2, 1, 23, 0, 0, 0, time.UTC)
	orig := &NormalizedEvent{
		Fingerprint: "fp",
		EndTime:     &end,
		Venue:       Venue{Name: "Neumos", Coordinates: &Coordinates{Lat: 47.6, Lng: -122.3}},
		Sources:     []string{"a"},
	}

	c := orig.Clone()
	c.Sources[0] = "b"
	c.Venue.Coordinates.Lat = 0
	*c.EndTime = time.Time{}

	if orig.Sources[0] != "a" || orig.Venue.Coordinates.Lat != 47.6 || orig.EndTime.IsZero() {
		t.Errorf("Clone() shares memory with original: %+v", orig)
	}
	if (*NormalizedEvent)(nil).Clone() != nil {
		t.Error("Clone() of nil = non-nil")
	}
}
