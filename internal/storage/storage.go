package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// ErrNotFound is returned by lookups when no record matches.
var ErrNotFound = errors.New("event not found")

// Store is the persisted event set.
type Store interface {
	// FindByFingerprint returns the record for key or ErrNotFound.
	FindByFingerprint(ctx context.Context, key string) (*event.NormalizedEvent, error)
	// Upsert inserts or replaces the record with e's fingerprint.
	Upsert(ctx context.Context, e *event.NormalizedEvent) error
}

// BatchUpserter is implemented by stores that can write several records in one
// round trip. Each record is still upserted independently by fingerprint.
type BatchUpserter interface {
	UpsertMany(ctx context.Context, events []*event.NormalizedEvent) error
}

// Lister is implemented by stores that can enumerate their records. An empty
// city lists every city. Results are ordered by start time.
type Lister interface {
	List(ctx context.Context, city string) ([]*event.NormalizedEvent, error)
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close(ctx context.Context) error
}

// Snapshot is the on-disk document written by FileStore.
type Snapshot struct {
	UpdatedAt string                            `json:"updated_at"`
	Events    map[string]*event.NormalizedEvent `json:"events"` // fingerprint -> event
}

// FileStore keeps every event in one JSON snapshot file. The whole document is
// held in memory and rewritten atomically after each upsert call.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	snapshot *Snapshot
}

// DefaultDataDir is used when no store path is configured.
const DefaultDataDir = "~/.local/share/discovr-ingest"

// NewFileStore opens (or creates) the snapshot at path. A path that is a
// directory, or has no extension, gets "events.json" appended.
func NewFileStore(path string) (*FileStore, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.Ext(path) == "" {
		path = filepath.Join(path, "events.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &FileStore{path: path}
	snapshot, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snapshot = snapshot
	return s, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// No previous snapshot, start empty
			return &Snapshot{Events: make(map[string]*event.NormalizedEvent)}, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if snapshot.Events == nil {
		snapshot.Events = make(map[string]*event.NormalizedEvent)
	}
	return &snapshot, nil
}

// save writes the snapshot to a temp file and renames it over the old one.
// Callers hold the write lock.
func (s *FileStore) save() error {
	s.snapshot.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".events-*.json")
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// FindByFingerprint implements Store.
func (s *FileStore) FindByFingerprint(ctx context.Context, key string) (*event.NormalizedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.snapshot.Events[key]; ok {
		return e.Clone(), nil
	}
	return nil, ErrNotFound
}

// Upsert implements Store.
func (s *FileStore) Upsert(ctx context.Context, e *event.NormalizedEvent) error {
	return s.UpsertMany(ctx, []*event.NormalizedEvent{e})
}

// UpsertMany implements BatchUpserter with a single file write. On a failed
// write the in-memory document is rolled back.
func (s *FileStore) UpsertMany(ctx context.Context, events []*event.NormalizedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.Fingerprint == "" {
			return fmt.Errorf("upserting event %q: empty fingerprint", e.Title)
		}
	}

	previous := make(map[string]*event.NormalizedEvent, len(events))
	for _, e := range events {
		if _, seen := previous[e.Fingerprint]; !seen {
			previous[e.Fingerprint] = s.snapshot.Events[e.Fingerprint]
		}
		s.snapshot.Events[e.Fingerprint] = e.Clone()
	}

	if err := s.save(); err != nil {
		for fp, old := range previous {
			if old == nil {
				delete(s.snapshot.Events, fp)
			} else {
				s.snapshot.Events[fp] = old
			}
		}
		return err
	}
	return nil
}

// GetByDisplayID retrieves an event by the id shown to clients.
func (s *FileStore) GetByDisplayID(id string) (*event.NormalizedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.snapshot.Events {
		if e.DisplayID == id {
			return e.Clone(), nil
		}
	}
	return nil, fmt.Errorf("display id %s: %w", id, ErrNotFound)
}

// Events returns every stored event ordered by start time.
func (s *FileStore) Events() []*event.NormalizedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedClones(s.snapshot.Events)
}

// List implements Lister.
func (s *FileStore) List(ctx context.Context, city string) ([]*event.NormalizedEvent, error) {
	return FilterCity(s.Events(), city), nil
}

// Len returns the number of stored events.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot.Events)
}

// Close implements Closer. The snapshot is already on disk.
func (s *FileStore) Close(context.Context) error {
	return nil
}

func sortedClones(m map[string]*event.NormalizedEvent) []*event.NormalizedEvent {
	out := make([]*event.NormalizedEvent, 0, len(m))
	for _, e := range m {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// FilterCity keeps the events in city, compared case-insensitively. An empty
// city keeps everything.
func FilterCity(events []*event.NormalizedEvent, city string) []*event.NormalizedEvent {
	city = strings.TrimSpace(city)
	if city == "" {
		return events
	}
	out := events[:0]
	for _, e := range events {
		if strings.EqualFold(e.City, city) {
			out = append(out, e)
		}
	}
	return out
}
