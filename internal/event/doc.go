// Package event provides the record types that flow through the ingestion pipeline
// and the pure functions that derive canonical values from them.
//
// A CandidateEvent is what a source collaborator scraped. ParseDate turns its raw
// date text into a canonical UTC timestamp (or ErrUnparseableDate), CleanTitle and
// NormalizePrice tidy display fields, Categorize assigns a category, and Fingerprint
// derives the deterministic SHA1-based key used to deduplicate and upsert a
// NormalizedEvent across sources and runs.
package event
