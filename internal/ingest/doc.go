// Package ingest runs candidate events from every configured source through the
// normalization pipeline and upserts the survivors.
//
// A Coordinator fetches sources on a bounded worker pool. Workers also run the
// per-candidate stages: date normalization, venue resolution, the validity
// rules and fingerprinting. Accepted events are handed to a single writer that
// merges in-run duplicates by fingerprint and performs batched, retried
// upserts. Each run produces a Report with per-reason and per-source counts.
package ingest
