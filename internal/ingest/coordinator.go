package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/filter"
	"github.com/pfrederiksen/discovr-ingest/internal/logger"
	"github.com/pfrederiksen/discovr-ingest/internal/metrics"
	"github.com/pfrederiksen/discovr-ingest/internal/source"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
	"github.com/pfrederiksen/discovr-ingest/internal/venue"
)

// Default tuning.
const (
	DefaultWorkers       = 4
	DefaultBatchSize     = 50
	DefaultRetryAttempts = 3
	DefaultRetryInitial  = 200 * time.Millisecond
	DefaultRetryMax      = 5 * time.Second
)

// Options tune a Coordinator. Zero values take the defaults.
type Options struct {
	Workers       int
	BatchSize     int
	Grace         time.Duration
	RetryAttempts int
	RetryInitial  time.Duration
	RetryMax      time.Duration
	Location      *time.Location
	JunkPhrases   []string
	Metrics       *metrics.Metrics
	Now           func() time.Time
	NewID         func() string
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = DefaultRetryInitial
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.NewString() }
	}
}

// Coordinator runs sources through the normalization pipeline and upserts
// the survivors.
//
// Sources are fetched by a bounded pool of workers, which also run the pure
// per-candidate stages (date, venue, validity, fingerprint). Accepted events
// flow to a single writer that owns the in-run fingerprint map and every store
// call, so two candidates with the same fingerprint can never race.
type Coordinator struct {
	sources   []source.Source
	store     storage.Store
	resolver  *venue.Resolver
	dates     *event.DateParser
	validator *filter.Validator
	opts      Options
}

// New creates a Coordinator.
func New(sources []source.Source, store storage.Store, resolver *venue.Resolver, opts Options) *Coordinator {
	opts.normalize()

	dates := event.NewDateParser(opts.Location)
	dates.Now = opts.Now
	validator := filter.NewValidator(opts.Grace, opts.JunkPhrases)
	validator.Now = opts.Now

	return &Coordinator{
		sources:   sources,
		store:     store,
		resolver:  resolver,
		dates:     dates,
		validator: validator,
		opts:      opts,
	}
}

// outcome is what a worker hands to the writer: either a fetch result or one
// processed candidate.
type outcome struct {
	source string

	// fetch result
	fetched  bool
	count    int
	fetchErr error

	// processed candidate
	event      *event.NormalizedEvent
	reason     filter.Reason
	title      string
	resolution venue.Resolution
}

// Run performs one ingestion run. A failing source never aborts the run.
// When ctx is cancelled the run stops at the next batch boundary and returns
// the partial report together with ctx's error.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	report := newReport(c.opts.NewID(), c.opts.Now())
	logger.Info("Ingestion run started", logger.Fields{
		"run_id":  report.RunID,
		"sources": len(c.sources),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan source.Source)
	results := make(chan outcome, c.opts.BatchSize)

	workers := c.opts.Workers
	if workers > len(c.sources) {
		workers = len(c.sources)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, jobs, results)
		}()
	}
	go func() {
		defer close(jobs)
		for _, s := range c.sources {
			select {
			case jobs <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	w := newWriter(c, report)
	for out := range results {
		w.handle(ctx, out)
	}
	w.flush(ctx)
	if ctx.Err() != nil {
		report.Aborted = true
	}

	report.DiscoveredVenues = c.resolver.Cache().Size()
	report.finish(c.opts.Now())
	c.opts.Metrics.RunFinished(report.Duration(), report.Succeeded(), report.FinishedAt)

	fields := logger.Fields{
		"run_id":         report.RunID,
		"seen":           report.Seen,
		"accepted":       report.Accepted,
		"rejected":       report.RejectedTotal(),
		"duplicates":     report.Duplicates,
		"inserted":       report.Inserted,
		"updated":        report.Updated,
		"stale":          report.Stale,
		"storage_errors": report.StorageErrors,
		"source_errors":  report.SourceErrors,
		"duration":       report.Duration().String(),
	}
	if report.Aborted {
		logger.Warn("Ingestion run aborted", fields)
		return report, ctx.Err()
	}
	logger.Info("Ingestion run finished", fields)
	return report, nil
}

func (c *Coordinator) worker(ctx context.Context, jobs <-chan source.Source, results chan<- outcome) {
	send := func(o outcome) bool {
		select {
		case results <- o:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for src := range jobs {
		name := src.Name()
		candidates, err := fetch(ctx, src)
		if !send(outcome{source: name, fetched: true, count: len(candidates), fetchErr: err}) || err != nil {
			continue
		}
		for _, cand := range candidates {
			if ctx.Err() != nil {
				break
			}
			o := c.process(cand)
			o.source = name
			if !send(o) {
				break
			}
		}
	}
}

// fetch calls src.Fetch, turning a panic into an error so one broken source
// cannot take down the run.
func fetch(ctx context.Context, src source.Source) (candidates []event.CandidateEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates, err = nil, fmt.Errorf("source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Fetch(ctx)
}

// process runs the pure stages for one candidate.
func (c *Coordinator) process(cand event.CandidateEvent) outcome {
	dates, dateErr := c.dates.Parse(cand.DateAttr, cand.DateText)
	res := c.resolver.Resolve(cand.VenueText, cand.AddressText, cand.CityHint)

	verdict := c.validator.Validate(filter.Input{
		Title:       cand.Title,
		Description: cand.Description,
		SourceURL:   cand.SourceURL,
		Start:       dates.Start,
		DateErr:     dateErr,
		City:        res.Venue.City,
		CrossCity:   res.Contaminated,
	})
	if !verdict.Accepted {
		return outcome{reason: verdict.Reason, title: cand.Title, resolution: res}
	}

	title := event.CleanTitle(cand.Title)
	start := dates.Start.UTC()
	e := &event.NormalizedEvent{
		Fingerprint: event.Fingerprint(title, start.In(c.opts.Location), res.Venue.Name),
		Title:       title,
		StartTime:   start,
		EndTime:     dates.End,
		Venue:       res.Venue,
		City:        res.Venue.City,
		Category:    event.Categorize(title, cand.Description, cand.CategoryHint),
		Description: cand.Description,
		ImageURL:    cand.ImageURL,
		Price:       event.NormalizePrice(cand.PriceText),
		SourceID:    cand.SourceID,
		Sources:     event.MergeSources(nil, []string{cand.SourceID}),
		SourceURL:   cand.SourceURL,
	}
	if !cand.LastModified.IsZero() {
		e.SourceModified = cand.LastModified.UTC()
	}
	return outcome{event: e, title: title, resolution: res}
}

// Classification is the result of the pure stages for one candidate.
type Classification struct {
	Accepted     bool                   `json:"accepted"`
	Reason       filter.Reason          `json:"reason,omitempty"`
	Event        *event.NormalizedEvent `json:"event,omitempty"`
	Match        venue.Match            `json:"venue_match"`
	DetectedCity string                 `json:"detected_city,omitempty"`
}

// Classify runs cand through date normalization, venue resolution, the
// validity rules and fingerprinting without touching the store.
func (c *Coordinator) Classify(cand event.CandidateEvent) Classification {
	o := c.process(cand)
	return Classification{
		Accepted:     o.event != nil,
		Reason:       o.reason,
		Event:        o.event,
		Match:        o.resolution.Match,
		DetectedCity: o.resolution.DetectedCity,
	}
}

// retry runs op with bounded exponential backoff. Errors wrapped with
// backoff.Permanent are returned at once.
func (c *Coordinator) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitial
	b.MaxInterval = c.opts.RetryMax
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.RetryAttempts-1)), ctx))
}

func (c *Coordinator) find(ctx context.Context, fingerprint string) (*event.NormalizedEvent, error) {
	var found *event.NormalizedEvent
	err := c.retry(ctx, func() error {
		e, err := c.store.FindByFingerprint(ctx, fingerprint)
		if errors.Is(err, storage.ErrNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		found = e
		return nil
	})
	return found, err
}

// writer is owned by the Run goroutine. Nothing here is shared.
type writer struct {
	c      *Coordinator
	report *Report

	seen    map[string]*event.NormalizedEvent // fingerprint -> merged in-run version
	pending []string                          // fingerprints awaiting the next flush
	queued  map[string]bool
	settled map[string]bool // fingerprints already counted as inserted, updated or stale
}

func newWriter(c *Coordinator, report *Report) *writer {
	return &writer{
		c:       c,
		report:  report,
		seen:    make(map[string]*event.NormalizedEvent),
		queued:  make(map[string]bool),
		settled: make(map[string]bool),
	}
}

// settle marks fp as counted and reports whether this is its first outcome.
func (w *writer) settle(fp string) bool {
	if w.settled[fp] {
		return false
	}
	w.settled[fp] = true
	return true
}

func (w *writer) handle(ctx context.Context, o outcome) {
	r := w.report
	m := w.c.opts.Metrics
	src := r.source(o.source)

	if o.fetched {
		if o.fetchErr != nil {
			r.SourceErrors++
			src.Error = o.fetchErr.Error()
			m.SourceError(o.source)
			logger.Error("Source fetch failed", logger.Fields{"source": o.source}, o.fetchErr)
			return
		}
		logger.Debug("Source fetched", logger.Fields{"source": o.source, "candidates": o.count})
		return
	}

	r.Seen++
	src.Candidates++

	if o.event == nil {
		r.Rejected[o.reason]++
		src.Rejected++
		m.Candidate(o.source, string(o.reason))
		if o.reason == filter.ReasonCrossCity {
			m.CrossCity(o.resolution.Venue.City)
			logger.Warn("Cross-city contamination rejected", logger.Fields{
				"source":        o.source,
				"title":         o.title,
				"venue":         o.resolution.Venue.Name,
				"claimed_city":  o.resolution.Venue.City,
				"detected_city": o.resolution.DetectedCity,
				"match":         string(o.resolution.Match),
			})
		} else {
			logger.Debug("Candidate rejected", logger.Fields{
				"source": o.source,
				"title":  o.title,
				"reason": string(o.reason),
			})
		}
		return
	}

	r.Accepted++
	src.Accepted++
	e := o.event

	changed := true
	if prev, ok := w.seen[e.Fingerprint]; ok {
		r.Duplicates++
		m.Candidate(o.source, metrics.OutcomeDuplicate)
		merged := prev
		if prev.IsStalerThan(e) {
			merged = e
		}
		known := len(prev.Sources)
		merged.Sources = event.MergeSources(prev.Sources, e.Sources)
		changed = merged != prev || len(merged.Sources) != known
		w.seen[e.Fingerprint] = merged
	} else {
		m.Candidate(o.source, metrics.OutcomeAccepted)
		w.seen[e.Fingerprint] = e
	}

	// A duplicate of an already flushed record is written again only when
	// the merge added something.
	if changed && !w.queued[e.Fingerprint] {
		w.queued[e.Fingerprint] = true
		w.pending = append(w.pending, e.Fingerprint)
	}
	if len(w.pending) >= w.c.opts.BatchSize {
		w.flush(ctx)
	}
}

// flush resolves and writes the pending batch. Cancellation is only observed
// here, between batches; a batch that has started is finished.
func (w *writer) flush(ctx context.Context) {
	if len(w.pending) == 0 || w.report.Aborted {
		return
	}
	if ctx.Err() != nil {
		w.report.Aborted = true
		logger.Warn("Run cancelled, remaining events not written", logger.Fields{
			"run_id":  w.report.RunID,
			"pending": len(w.pending),
		})
		return
	}
	ctx = context.WithoutCancel(ctx)

	now := w.c.opts.Now().UTC()
	batch := make([]*event.NormalizedEvent, 0, len(w.pending))
	results := make(map[string]string, len(w.pending))

	for _, fp := range w.pending {
		incoming := w.seen[fp]
		existing, err := w.c.find(ctx, fp)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			rec := incoming.Clone()
			rec.DisplayID = w.c.opts.NewID()
			rec.FirstSeen = now
			rec.LastUpdated = now
			batch = append(batch, rec)
			results[fp] = metrics.ResultInserted

		case err != nil:
			w.storageError(fp, incoming.Title, err)

		case incoming.IsStalerThan(existing):
			if w.settle(fp) {
				w.report.Stale++
				w.c.opts.Metrics.Upsert(metrics.ResultStale)
			}
			logger.Debug("Skipping stale update", logger.Fields{
				"fingerprint":      fp,
				"incoming_version": incoming.SourceModified,
				"stored_version":   existing.SourceModified,
			})

		default:
			rec := incoming.Clone()
			rec.DisplayID = existing.DisplayID
			rec.FirstSeen = existing.FirstSeen
			rec.Sources = event.MergeSources(existing.Sources, incoming.Sources)
			rec.LastUpdated = now
			if changes := event.DetectChanges(existing, rec); len(changes) > 0 {
				w.report.Changed++
				for _, ch := range changes {
					logger.Info("Event changed", logger.Fields{
						"fingerprint": fp,
						"change":      ch.ChangeType,
						"old":         ch.OldValue,
						"new":         ch.NewValue,
					})
				}
			}
			batch = append(batch, rec)
			results[fp] = metrics.ResultUpdated
		}
	}

	w.pending = w.pending[:0]
	clear(w.queued)
	w.write(ctx, batch, results)
}

// write upserts batch, in one call when the store supports it. A batch call
// that keeps failing is retried record by record so one bad record cannot
// sink the others.
func (w *writer) write(ctx context.Context, batch []*event.NormalizedEvent, results map[string]string) {
	if len(batch) == 0 {
		return
	}

	if bu, ok := w.c.store.(storage.BatchUpserter); ok && len(batch) > 1 {
		err := w.c.retry(ctx, func() error { return bu.UpsertMany(ctx, batch) })
		if err == nil {
			for _, rec := range batch {
				w.written(rec, results[rec.Fingerprint])
			}
			return
		}
		logger.Warn("Batch upsert failed, retrying records individually", logger.Fields{
			"run_id": w.report.RunID,
			"size":   len(batch),
			"error":  err.Error(),
		})
	}

	for _, rec := range batch {
		err := w.c.retry(ctx, func() error { return w.c.store.Upsert(ctx, rec) })
		if err != nil {
			w.storageError(rec.Fingerprint, rec.Title, err)
			continue
		}
		w.written(rec, results[rec.Fingerprint])
	}
}

func (w *writer) written(rec *event.NormalizedEvent, result string) {
	if w.settle(rec.Fingerprint) {
		if result == metrics.ResultInserted {
			w.report.Inserted++
		} else {
			w.report.Updated++
		}
		w.c.opts.Metrics.Upsert(result)
	}
	logger.Debug("Event upserted", logger.Fields{
		"fingerprint": rec.Fingerprint,
		"id":          rec.DisplayID,
		"result":      result,
		"sources":     rec.Sources,
	})
}

func (w *writer) storageError(fp, title string, err error) {
	w.report.StorageErrors++
	w.c.opts.Metrics.Upsert(metrics.ResultFailed)
	logger.Error("Storage call failed", logger.Fields{
		"run_id":      w.report.RunID,
		"fingerprint": fp,
		"title":       title,
	}, err)
}
