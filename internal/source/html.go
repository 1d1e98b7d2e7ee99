package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// HTMLSource fetches a listing page and extracts one candidate per item
// matched by the configured selectors.
type HTMLSource struct {
	cfg    Config
	client *resty.Client
}

// NewHTMLSource creates an HTMLSource from c. c.Selectors must be set.
func NewHTMLSource(c Config) *HTMLSource {
	return &HTMLSource{cfg: c, client: newClient(c)}
}

// Name implements Source.
func (s *HTMLSource) Name() string { return s.cfg.Name }

// Fetch implements Source.
func (s *HTMLSource) Fetch(ctx context.Context) ([]event.CandidateEvent, error) {
	body, err := fetchBody(ctx, s.client, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.parseEvents(bytes.NewReader(body))
}

// parseEvents extracts candidates from HTML
func (s *HTMLSource) parseEvents(r io.Reader) ([]event.CandidateEvent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	base, _ := url.Parse(s.cfg.URL)
	sel := s.cfg.Selectors
	candidates := make([]event.CandidateEvent, 0)

	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		cand := event.CandidateEvent{
			Title:        textOf(item, sel.Title),
			VenueText:    textOf(item, sel.Venue),
			AddressText:  textOf(item, sel.Address),
			Description:  textOf(item, sel.Description),
			PriceText:    textOf(item, sel.Price),
			CategoryHint: textOf(item, sel.Category),
			SourceURL:    resolveURL(base, attrOf(item, sel.Link, "href")),
			ImageURL:     resolveURL(base, attrOf(item, sel.Image, "src")),
		}
		cand.DateAttr, cand.DateText = s.dateOf(item)
		if cand.DateAttr == "" && cand.DateText == "" {
			cand.DateText = extractDate(cand.Title)
		}
		if cand.SourceURL == "" {
			cand.SourceURL = s.cfg.URL
		}
		stamp(s.cfg, &cand)
		candidates = append(candidates, cand)
	})

	return candidates, nil
}

// dateOf returns the structured date attribute and visible date text of an
// item. Without a date selector the first time[datetime] element is used.
func (s *HTMLSource) dateOf(item *goquery.Selection) (attr, text string) {
	sel := s.cfg.Selectors
	var node *goquery.Selection
	if sel.Date != "" {
		node = item.Find(sel.Date).First()
	} else {
		node = item.Find("time[datetime]").First()
	}
	if node.Length() == 0 {
		return "", ""
	}

	names := []string{"datetime", "data-date"}
	if sel.DateAttr != "" {
		names = append([]string{sel.DateAttr}, names...)
	}
	for _, name := range names {
		if v, ok := node.Attr(name); ok && strings.TrimSpace(v) != "" {
			attr = strings.TrimSpace(v)
			break
		}
	}
	return attr, strings.TrimSpace(node.Text())
}

func textOf(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(item.Find(selector).First().Text()), " ")
}

func attrOf(item *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	v, _ := item.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

var (
	// "4.4.26" or "04.04.2026"
	dottedDateRe = regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`)
	// "Jan 24", "February 8 2026"
	monthDateRe = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`)
	// "02/15/26"
	slashDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
)

// extractDate pulls date text out of a title for items that carry no
// separate date element. Looks for patterns like "4.4.26", "Jan 24" and
// "02/15/26".
func extractDate(title string) string {
	for _, re := range []*regexp.Regexp{dottedDateRe, monthDateRe, slashDateRe} {
		if match := re.FindString(title); match != "" {
			return match
		}
	}
	return ""
}
