package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const listingHTML = `<html><body>
<nav><a href="/">Home</a></nav>
<div class="event">
  <h3 class="title">Jazz Night</h3>
  <time datetime="2026-05-01T19:00:00-04:00">Fri May 1st, 7pm</time>
  <span class="venue">Blue Note</span>
  <span class="addr">131 W 3rd St</span>
  <a class="more" href="/events/jazz-night">More</a>
  <img src="/img/jazz.jpg">
  <span class="price">$25 + fees</span>
</div>
<div class="event">
  <h3 class="title">Gallery Walk   Jan 24</h3>
  <span class="venue">Somewhere</span>
</div>
<div class="event">
  <h3 class="title">Pop-up Market</h3>
  <span class="when" data-date="2026-06-12">June 12</span>
</div>
</body></html>`

func retries(n int) *int { return &n }

func testConfig(name, typ, url string) Config {
	return Config{
		Name:      name,
		Type:      typ,
		URL:       url,
		City:      "New York",
		Retries:   retries(2),
		RetryWait: time.Millisecond,
		Timeout:   5 * time.Second,
	}
}

func TestHTMLSource_Fetch(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	cfg := testConfig("nyc-html", TypeHTML, srv.URL+"/listings")
	cfg.Selectors = &Selectors{
		Item:    "div.event",
		Title:   ".title",
		Venue:   ".venue",
		Address: ".addr",
		Link:    "a.more",
		Image:   "img",
		Price:   ".price",
	}
	src, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() error: %v", err)
	}

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Fetch() returned %d candidates, want 3", len(got))
	}
	if ua, _ := gotUA.Load().(string); ua != UserAgent {
		t.Errorf("User-Agent = %q, want %q", ua, UserAgent)
	}

	first := got[0]
	if first.Title != "Jazz Night" {
		t.Errorf("Title = %q, want %q", first.Title, "Jazz Night")
	}
	if first.DateAttr != "2026-05-01T19:00:00-04:00" {
		t.Errorf("DateAttr = %q, want the datetime attribute", first.DateAttr)
	}
	if first.DateText != "Fri May 1st, 7pm" {
		t.Errorf("DateText = %q, want %q", first.DateText, "Fri May 1st, 7pm")
	}
	if first.VenueText != "Blue Note" || first.AddressText != "131 W 3rd St" {
		t.Errorf("venue = %q / %q, want Blue Note / 131 W 3rd St", first.VenueText, first.AddressText)
	}
	if first.SourceURL != srv.URL+"/events/jazz-night" {
		t.Errorf("SourceURL = %q, want resolved link", first.SourceURL)
	}
	if first.ImageURL != srv.URL+"/img/jazz.jpg" {
		t.Errorf("ImageURL = %q, want resolved image", first.ImageURL)
	}
	if first.SourceID != "nyc-html" || first.CityHint != "New York" {
		t.Errorf("SourceID/CityHint = %q/%q, want nyc-html/New York", first.SourceID, first.CityHint)
	}

	second := got[1]
	if second.Title != "Gallery Walk Jan 24" {
		t.Errorf("Title = %q, want whitespace collapsed", second.Title)
	}
	if second.DateText != "Jan 24" {
		t.Errorf("DateText = %q, want date pulled from title", second.DateText)
	}
	if second.SourceURL != srv.URL+"/listings" {
		t.Errorf("SourceURL = %q, want listing URL fallback", second.SourceURL)
	}

	third := got[2]
	if third.DateAttr != "" {
		t.Errorf("DateAttr = %q, want empty without a date selector match", third.DateAttr)
	}
}

func TestHTMLSource_DateSelectorAndAttr(t *testing.T) {
	cfg := testConfig("nyc-html", TypeHTML, "https://example.com/")
	cfg.Selectors = &Selectors{Item: "div.event", Title: ".title", Date: ".when"}
	s := NewHTMLSource(cfg)

	got, err := s.parseEvents(strings.NewReader(listingHTML))
	if err != nil {
		t.Fatalf("parseEvents() error: %v", err)
	}
	if got[2].DateAttr != "2026-06-12" || got[2].DateText != "June 12" {
		t.Errorf("date = %q / %q, want 2026-06-12 / June 12", got[2].DateAttr, got[2].DateText)
	}
}

func TestHTMLSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	cfg := testConfig("flaky", TypeHTML, srv.URL)
	cfg.Selectors = &Selectors{Item: "div.event", Title: ".title"}
	src, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() error: %v", err)
	}

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Fetch() returned %d candidates, want 3", len(got))
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d requests, want 2", calls.Load())
	}
}

func TestHTMLSource_ZeroRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig("no-retry", TypeHTML, srv.URL)
	cfg.Retries = retries(0)
	cfg.Selectors = &Selectors{Item: "div.event", Title: ".title"}
	src, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() error: %v", err)
	}

	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Fetch() error = nil, want server error")
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", calls.Load())
	}
}

func TestHTMLSource_ClientErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig("gone", TypeHTML, srv.URL)
	cfg.Selectors = &Selectors{Item: "div.event", Title: ".title"}
	src, _ := NewFromConfig(cfg)

	if _, err := src.Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch() error = %v, want status 404 error", err)
	}
}

func TestJSONSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.json")
	data := `[
		{"title": "Jazz Night", "date_attr": "2026-05-01T19:00:00Z", "venue_text": "Blue Note"},
		{"title": "Raves", "date_text": "May 2", "source_id": "partner-feed", "city_hint": "Miami"}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig("drop", TypeJSON, "")
	cfg.Path = path
	cfg.Category = "music"
	src, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() error: %v", err)
	}

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Fetch() returned %d candidates, want 2", len(got))
	}
	if got[0].SourceID != "drop" || got[0].CityHint != "New York" || got[0].CategoryHint != "music" {
		t.Errorf("candidate 0 = %+v, want defaults stamped", got[0])
	}
	if got[1].SourceID != "partner-feed" || got[1].CityHint != "Miami" {
		t.Errorf("candidate 1 = %+v, want its own source and city kept", got[1])
	}
}

func TestJSONSource_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	src := NewJSONSource(testConfig("bad", TypeJSON, srv.URL))
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("Fetch() error = nil, want parse error")
	}
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json", Config{Name: "a", Type: TypeJSON, Path: "x.json"}, false},
		{"ics", Config{Name: "b", Type: TypeICS, URL: "https://example.com/feed.ics"}, false},
		{"html without selectors", Config{Name: "c", Type: TypeHTML, URL: "https://example.com"}, true},
		{"unknown type", Config{Name: "d", Type: "rss", URL: "https://example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && src.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.cfg.Name)
			}
		})
	}
}

func TestConfig_Normalize(t *testing.T) {
	var c Config
	c.Normalize()
	if c.Timeout != DefaultTimeout || c.Retries == nil || *c.Retries != DefaultRetries || c.RetryWait != DefaultRetryWait {
		t.Errorf("Normalize() = %+v, want defaults", c)
	}

	explicit := Config{Retries: retries(0)}
	explicit.Normalize()
	if explicit.Retries == nil || *explicit.Retries != 0 {
		t.Errorf("Normalize() changed retries: 0 to %v", explicit.Retries)
	}
	if c.UserAgent != UserAgent || c.Horizon != DefaultHorizon {
		t.Errorf("Normalize() = %+v, want default user agent and horizon", c)
	}
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Rooftop Cinema 4.4.26", "4.4.26"},
		{"Winter Classic Jan 24", "Jan 24"},
		{"Spring Open 02/15/26", "02/15/26"},
		{"Harbour Fest February 8th, 2026", "February 8th, 2026"},
		{"No date here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := extractDate(tt.title); got != tt.want {
				t.Errorf("extractDate(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}
