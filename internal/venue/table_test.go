package venue

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable() error: %v", err)
	}

	if got := len(table.Cities()); got < 5 {
		t.Errorf("len(Cities()) = %d, want at least 5", got)
	}
	if got := table.Entries("Vancouver"); len(got) == 0 {
		t.Error("Entries(Vancouver) is empty")
	}
	for _, e := range table.Entries("") {
		if e.Address == "" {
			t.Errorf("curated venue %q has no address", e.Name)
		}
	}
}

func TestParseTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "malformed yaml",
			yaml: "cities: [",
			want: "parsing venue table",
		},
		{
			name: "no cities",
			yaml: "venues: []",
			want: "invalid venue table",
		},
		{
			name: "city without keywords",
			yaml: "cities:\n  - name: Vancouver\n",
			want: "invalid venue table",
		},
		{
			name: "venue in unknown city",
			yaml: "cities:\n  - name: Vancouver\n    keywords: [vancouver]\nvenues:\n  - name: X Hall\n    city: Gotham\n",
			want: "unknown city",
		},
		{
			name: "duplicate venue",
			yaml: "cities:\n  - name: Vancouver\n    keywords: [vancouver]\nvenues:\n  - name: X Hall\n    city: Vancouver\n  - name: x hall\n    city: vancouver\n",
			want: "duplicate venue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseTable() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venues.yaml")
	data := "cities:\n  - name: Halifax\n    keywords: [halifax, nova scotia]\n    codes: [NS]\nvenues:\n  - name: Light House Arts Centre\n    city: halifax\n    address: 1943 Brunswick St, Halifax, NS\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable() error: %v", err)
	}
	if got := table.CityNames(); !reflect.DeepEqual(got, []string{"Halifax"}) {
		t.Errorf("CityNames() = %v, want [Halifax]", got)
	}
	entries := table.Entries("Halifax")
	if len(entries) != 1 || entries[0].City != "Halifax" {
		t.Errorf("Entries(Halifax) = %+v, want one entry with canonical city", entries)
	}

	if _, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadTable(missing) error = nil, want error")
	}
}

func TestTable_WriteYAML(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable() error: %v", err)
	}

	var buf bytes.Buffer
	if err := table.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML() error: %v", err)
	}

	again, err := ParseTable(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseTable(WriteYAML()) error: %v", err)
	}
	if len(again.Entries("")) != len(table.Entries("")) {
		t.Errorf("re-parsed %d venues, want %d", len(again.Entries("")), len(table.Entries("")))
	}
}

func TestTable_CanonicalCity(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable() error: %v", err)
	}

	tests := []struct {
		hint string
		want string
	}{
		{"Vancouver", "Vancouver"},
		{"  vancouver ", "Vancouver"},
		{"NYC", "New York"},
		{"Brooklyn", "New York"},
		{"QC", "Montreal"},
		{"Montréal", "Montreal"},
		{"los-angeles", "Los Angeles"},
		{"Gotham", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			if got := table.CanonicalCity(tt.hint); got != tt.want {
				t.Errorf("CanonicalCity(%q) = %q, want %q", tt.hint, got, tt.want)
			}
		})
	}
}

func TestTable_DetectCities(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable() error: %v", err)
	}

	tests := []struct {
		name    string
		text    string
		exclude string
		want    []string
	}{
		{"keyword", "147 E Pender St, Vancouver", "", []string{"Vancouver"}},
		{"excluded city ignored", "147 E Pender St, Vancouver", "Vancouver", nil},
		{"province code", "219 8 Ave SW, AB T2P 1B5", "", []string{"Calgary"}},
		{"lowercase code is a word", "carry on dancing", "", nil},
		{"two cities", "Toronto to Montreal tour", "", []string{"Montreal", "Toronto"}},
		{"whole words only", "Vancouverite social", "", nil},
		{"empty", "   ", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.DetectCities(tt.text, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectCities(%q, %q) = %v, want %v", tt.text, tt.exclude, got, tt.want)
			}
		})
	}
}

func TestTable_VenueKey(t *testing.T) {
	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable() error: %v", err)
	}

	tests := []struct {
		name1, name2 string
		shouldMatch  bool
	}{
		{"Rickshaw Theatre", "rickshaw theater", true},
		{"The Orpheum", "Orpheum Theatre, Vancouver", true},
		{"Club Space Miami", "Club Space", true},
		{"Bell Centre", "BELL CENTER", true},
		{"Theatre", "Theater", false},
		{"Commodore Ballroom", "Commodore Lanes", false},
	}

	for _, tt := range tests {
		k1, k2 := table.venueKey(tt.name1), table.venueKey(tt.name2)
		if (k1 == k2) != tt.shouldMatch {
			t.Errorf("venueKey(%q)=%q vs venueKey(%q)=%q: match=%v, want %v",
				tt.name1, k1, tt.name2, k2, k1 == k2, tt.shouldMatch)
		}
	}
}

func TestLooksLikeStreetAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"868 Granville St, Vancouver, BC", true},
		{"1700 Washington Ave", true},
		{"59 Rue Sainte-Catherine E", true},
		{"Downtown", false},
		{"Vancouver, BC", false},
		{"Suite 200", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := LooksLikeStreetAddress(tt.in); got != tt.want {
				t.Errorf("LooksLikeStreetAddress(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
