package ingest

import (
	"sort"
	"time"

	"github.com/pfrederiksen/discovr-ingest/internal/filter"
)

// SourceReport summarizes one source's contribution to a run.
type SourceReport struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	Error      string `json:"error,omitempty"`
}

// Report is the outcome of one ingestion run.
//
// Seen = Accepted + sum(Rejected). Accepted candidates that shared a
// fingerprint with an earlier one in the same run are also counted in
// Duplicates. Each distinct fingerprint is counted at most once across
// Inserted, Updated and Stale, by its first outcome in the run; a later
// re-write that merges in another source does not count again.
// StorageErrors counts failed writes, so a fingerprint whose only write
// failed appears there alone. Fingerprints still pending when the run
// aborts appear in none of them.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Seen       int                   `json:"seen"`
	Accepted   int                   `json:"accepted"`
	Rejected   map[filter.Reason]int `json:"rejected"`
	Duplicates int                   `json:"duplicates"`

	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	Changed       int `json:"changed"`
	Stale         int `json:"stale"`
	StorageErrors int `json:"storage_errors"`

	SourceErrors     int            `json:"source_errors"`
	Sources          []SourceReport `json:"sources"`
	DiscoveredVenues int            `json:"discovered_venues"`

	Aborted bool `json:"aborted,omitempty"`

	bySource map[string]*SourceReport
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: started,
		Rejected:  make(map[filter.Reason]int),
		bySource:  make(map[string]*SourceReport),
	}
}

func (r *Report) source(name string) *SourceReport {
	s, ok := r.bySource[name]
	if !ok {
		s = &SourceReport{Name: name}
		r.bySource[name] = s
	}
	return s
}

func (r *Report) finish(at time.Time) {
	r.FinishedAt = at
	r.Sources = make([]SourceReport, 0, len(r.bySource))
	for _, s := range r.bySource {
		r.Sources = append(r.Sources, *s)
	}
	sort.Slice(r.Sources, func(i, j int) bool { return r.Sources[i].Name < r.Sources[j].Name })
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RejectedTotal sums the rejections across reasons.
func (r *Report) RejectedTotal() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

// Succeeded reports whether every accepted record reached the store.
func (r *Report) Succeeded() bool {
	return r.StorageErrors == 0 && !r.Aborted
}

// HasErrors reports whether any source or storage call failed.
func (r *Report) HasErrors() bool {
	return r.StorageErrors > 0 || r.SourceErrors > 0
}
