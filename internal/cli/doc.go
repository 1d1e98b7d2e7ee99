// Package cli implements the command-line interface for discovr-ingest.
//
// The cli package provides the Cobra-based commands: run performs one ingestion
// pass and prints the run report (text/JSON), schedule repeats passes on a cron
// schedule while serving Prometheus metrics, check classifies a single candidate,
// venues lists the known-venue table, events lists or exports stored events
// (text/JSON/iCalendar), and init writes an example configuration. It wires the
// config, source, venue, ingest, storage and metrics packages together.
package cli
