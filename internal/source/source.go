package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// Source types accepted in configuration.
const (
	TypeJSON = "json"
	TypeHTML = "html"
	TypeICS  = "ics"
)

const (
	UserAgent        = "discovr-ingest/1.0 (github.com/pfrederiksen/discovr-ingest)"
	DefaultTimeout   = 30 * time.Second
	DefaultRetries   = 2
	DefaultRetryWait = 500 * time.Millisecond
	DefaultHorizon   = 90 * 24 * time.Hour
)

// Source produces raw candidates for one run. Implementations must not
// normalize or filter; that is the pipeline's job.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]event.CandidateEvent, error)
}

// Selectors are the CSS selectors used by the html source. Every selector
// except Item is evaluated relative to the matched item.
type Selectors struct {
	Item        string `yaml:"item" validate:"required"`
	Title       string `yaml:"title" validate:"required"`
	Date        string `yaml:"date"`
	DateAttr    string `yaml:"date_attr"` // attribute name on the Date element
	Venue       string `yaml:"venue"`
	Address     string `yaml:"address"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Price       string `yaml:"price"`
	Category    string `yaml:"category"`
}

// Config describes one source in the run configuration.
type Config struct {
	Name      string        `yaml:"name" validate:"required"`
	Type      string        `yaml:"type" validate:"required,oneof=json html ics"`
	URL       string        `yaml:"url" validate:"omitempty,url"`
	Path      string        `yaml:"path" validate:"required_without=URL"`
	City      string        `yaml:"city"`
	Category  string        `yaml:"category"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   *int          `yaml:"retries,omitempty" validate:"omitempty,gte=0,lte=10"` // nil means DefaultRetries
	RetryWait time.Duration `yaml:"retry_wait"`
	UserAgent string        `yaml:"user_agent"`
	Horizon   time.Duration `yaml:"horizon"`
	Selectors *Selectors    `yaml:"selectors,omitempty" validate:"required_if=Type html"`
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries == nil {
		n := DefaultRetries
		c.Retries = &n
	}
	if c.RetryWait <= 0 {
		c.RetryWait = DefaultRetryWait
	}
	if c.UserAgent == "" {
		c.UserAgent = UserAgent
	}
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
}

// NewFromConfig builds the source described by c.
func NewFromConfig(c Config) (Source, error) {
	c.Normalize()
	switch c.Type {
	case TypeJSON:
		return NewJSONSource(c), nil
	case TypeHTML:
		if c.Selectors == nil {
			return nil, fmt.Errorf("source %s: html source needs selectors", c.Name)
		}
		return NewHTMLSource(c), nil
	case TypeICS:
		return NewICSSource(c), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}

func (c Config) retryCount() int {
	if c.Retries == nil {
		return DefaultRetries
	}
	return *c.Retries
}

func newClient(c Config) *resty.Client {
	return resty.New().
		SetTimeout(c.Timeout).
		SetRetryCount(c.retryCount()).
		SetRetryWaitTime(c.RetryWait).
		SetRetryMaxWaitTime(4*c.RetryWait).
		SetHeader("User-Agent", c.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= 500
		})
}

// fetchBody reads the configured file, or GETs the configured URL.
func fetchBody(ctx context.Context, client *resty.Client, c Config) ([]byte, error) {
	if c.Path != "" {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c.Path, err)
		}
		return data, nil
	}

	resp, err := client.R().SetContext(ctx).Get(c.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", c.URL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching %s: unexpected status code: %d", c.URL, resp.StatusCode())
	}
	return resp.Body(), nil
}

// stamp fills the source id and configured defaults on a candidate.
func stamp(c Config, cand *event.CandidateEvent) {
	if cand.SourceID == "" {
		cand.SourceID = c.Name
	}
	if cand.CityHint == "" {
		cand.CityHint = c.City
	}
	if cand.CategoryHint == "" {
		cand.CategoryHint = c.Category
	}
}
