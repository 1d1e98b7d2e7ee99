package venue

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

//go:embed venues.yaml
var defaultTableYAML []byte

// City is a known city together with the words that identify it in free text.
// Codes are province/state abbreviations, matched only in address form
// (", BC").
type City struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
	Codes    []string `yaml:"codes,omitempty"`

	codeRe *regexp.Regexp
}

// Entry is one curated venue.
type Entry struct {
	Name        string             `yaml:"name" validate:"required"`
	City        string             `yaml:"city" validate:"required"`
	Aliases     []string           `yaml:"aliases,omitempty"`
	Address     string             `yaml:"address,omitempty"`
	Coordinates *event.Coordinates `yaml:"coordinates,omitempty"`
}

// Record converts the entry to the value stored on events.
func (e *Entry) Record() event.Venue {
	v := event.Venue{Name: e.Name, Address: e.Address, City: e.City}
	if e.Coordinates != nil {
		c := *e.Coordinates
		v.Coordinates = &c
	}
	return v
}

type document struct {
	Cities []City  `yaml:"cities" validate:"required,min=1,dive"`
	Venues []Entry `yaml:"venues" validate:"dive"`
}

// Table is the authoritative known-venue table. It is immutable once loaded.
type Table struct {
	cities []City
	byName map[string]*City // normalized city name -> city

	entries []*Entry
	exact   map[string]map[string]*Entry // city -> lowercased name/alias -> entry
	norm    map[string]map[string]*Entry // city -> venue key -> entry
}

var validate = validator.New()

// DefaultTable parses the table embedded in the binary.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableYAML)
}

// LoadTable reads a table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading venue table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML table document.
func ParseTable(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing venue table: %w", err)
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid venue table: %w", err)
	}

	t := &Table{
		byName: make(map[string]*City),
		exact:  make(map[string]map[string]*Entry),
		norm:   make(map[string]map[string]*Entry),
	}

	t.cities = doc.Cities
	for i := range t.cities {
		c := &t.cities[i]
		key := event.NormalizeKey(c.Name)
		if _, dup := t.byName[key]; dup {
			return nil, fmt.Errorf("invalid venue table: duplicate city %q", c.Name)
		}
		t.byName[key] = c
		if len(c.Codes) > 0 {
			quoted := make([]string, len(c.Codes))
			for j, code := range c.Codes {
				quoted[j] = regexp.QuoteMeta(code)
			}
			c.codeRe = regexp.MustCompile(`,\s*(?:` + strings.Join(quoted, "|") + `)\b`)
		}
		t.exact[c.Name] = make(map[string]*Entry)
		t.norm[c.Name] = make(map[string]*Entry)
	}

	for i := range doc.Venues {
		e := &doc.Venues[i]
		city := t.lookupCity(e.City)
		if city == nil {
			return nil, fmt.Errorf("invalid venue table: venue %q has unknown city %q", e.Name, e.City)
		}
		e.City = city.Name

		exactKey := strings.ToLower(strings.TrimSpace(e.Name))
		if _, dup := t.exact[city.Name][exactKey]; dup {
			return nil, fmt.Errorf("invalid venue table: duplicate venue %q in %s", e.Name, city.Name)
		}
		t.entries = append(t.entries, e)

		for _, name := range append([]string{e.Name}, e.Aliases...) {
			lower := strings.ToLower(strings.TrimSpace(name))
			if _, ok := t.exact[city.Name][lower]; !ok {
				t.exact[city.Name][lower] = e
			}
			k := t.venueKey(name)
			if _, ok := t.norm[city.Name][k]; !ok && k != "" {
				t.norm[city.Name][k] = e
			}
		}
	}

	return t, nil
}

// Cities returns the known cities in table order.
func (t *Table) Cities() []City {
	return t.cities
}

// CityNames returns the canonical names of the known cities.
func (t *Table) CityNames() []string {
	names := make([]string, len(t.cities))
	for i, c := range t.cities {
		names[i] = c.Name
	}
	return names
}

// Entries returns every curated venue, optionally limited to one city.
func (t *Table) Entries(city string) []*Entry {
	if city == "" {
		return t.entries
	}
	c := t.lookupCity(city)
	if c == nil {
		return nil
	}
	var out []*Entry
	for _, e := range t.entries {
		if e.City == c.Name {
			out = append(out, e)
		}
	}
	return out
}

// CanonicalCity maps a city hint ("vancouver", "NYC", "QC") to a known city
// name. Returns "" when the hint is not recognized.
func (t *Table) CanonicalCity(hint string) string {
	if c := t.lookupCity(hint); c != nil {
		return c.Name
	}
	return ""
}

func (t *Table) lookupCity(hint string) *City {
	key := event.NormalizeKey(hint)
	if key == "" {
		return nil
	}
	if c, ok := t.byName[key]; ok {
		return c
	}
	for i := range t.cities {
		c := &t.cities[i]
		for _, kw := range c.Keywords {
			if event.NormalizeKey(kw) == key {
				return c
			}
		}
		for _, code := range c.Codes {
			if strings.EqualFold(code, strings.TrimSpace(hint)) {
				return c
			}
		}
	}
	return nil
}

// findExact returns the entry whose name or alias equals name, ignoring case.
func (t *Table) findExact(city, name string) *Entry {
	return t.exact[city][strings.ToLower(strings.TrimSpace(name))]
}

// findNormalized returns the entry whose venue key equals name's.
func (t *Table) findNormalized(city, name string) *Entry {
	k := t.venueKey(name)
	if k == "" {
		return nil
	}
	return t.norm[city][k]
}

// findElsewhere searches every city except city for name, exact first.
func (t *Table) findElsewhere(city, name string) *Entry {
	for _, c := range t.cities {
		if c.Name == city {
			continue
		}
		if e := t.findExact(c.Name, name); e != nil {
			return e
		}
	}
	for _, c := range t.cities {
		if c.Name == city {
			continue
		}
		if e := t.findNormalized(c.Name, name); e != nil {
			return e
		}
	}
	return nil
}

// WriteYAML writes the table in the same format it was loaded from.
func (t *Table) WriteYAML(w io.Writer) error {
	doc := document{Cities: t.cities}
	for _, e := range t.entries {
		doc.Venues = append(doc.Venues, *e)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding venue table: %w", err)
	}
	return enc.Close()
}
