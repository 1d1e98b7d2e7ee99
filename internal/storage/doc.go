// Package storage persists normalized events keyed by fingerprint.
//
// Store is the contract the ingestion coordinator writes through. FileStore keeps
// a single JSON snapshot document on disk (the default location is
// ~/.local/share/discovr-ingest/events.json) and MemoryStore backs dry runs and
// tests. The mongo and postgres subpackages provide document-store backends for
// production.
package storage
