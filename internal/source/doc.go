// Package source provides the configuration-driven collaborators that feed
// raw candidate events into the ingestion pipeline.
//
// Three kinds are supported:
//
//   - json: a JSON array of candidates dropped by an external scraper, read
//     from a file or URL
//   - html: a listing page whose items are picked out with CSS selectors
//   - ics: an iCalendar feed, with recurring events expanded up to a horizon
//
// Sources never normalize or filter. Anything they return, however messy,
// goes through the same pipeline.
package source
