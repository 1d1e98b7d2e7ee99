package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
	"github.com/pfrederiksen/discovr-ingest/internal/storage"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("DISCOVR_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("skip mongo integration tests: DISCOVR_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database := fmt.Sprintf("itest_discovr_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, database, "")
	if err != nil {
		t.Skipf("skip mongo integration tests: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.coll.Database().Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	e := &event.NormalizedEvent{
		Fingerprint: "fp-1",
		DisplayID:   "id-1",
		Title:       "Jazz Night at Blue Note",
		StartTime:   start,
		Venue:       event.Venue{Name: "Blue Note", City: "New York"},
		City:        "New York",
		Category:    "music",
		Sources:     []string{"nyc-html"},
	}

	if _, err := s.FindByFingerprint(ctx, "fp-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindByFingerprint() error = %v, want storage.ErrNotFound", err)
	}

	if err := s.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	e2 := e.Clone()
	e2.Sources = append(e2.Sources, "nyc-json")
	other := e.Clone()
	other.Fingerprint, other.DisplayID = "fp-2", "id-2"
	if err := s.UpsertMany(ctx, []*event.NormalizedEvent{e2, other}); err != nil {
		t.Fatalf("UpsertMany() error: %v", err)
	}

	got, err := s.FindByFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FindByFingerprint() error: %v", err)
	}
	if len(got.Sources) != 2 || !got.StartTime.Equal(start) {
		t.Errorf("FindByFingerprint() = %+v, want merged sources and same start", got)
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("CountDocuments() error: %v", err)
	}
	if n != 2 {
		t.Errorf("document count = %d, want 2", n)
	}

	listed, err := s.List(ctx, "New York")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(listed) != 2 || listed[0].Fingerprint != "fp-1" {
		t.Errorf("List(New York) = %d events, want 2 starting with fp-1", len(listed))
	}
	if none, _ := s.List(ctx, "Calgary"); len(none) != 0 {
		t.Errorf("List(Calgary) = %d events, want 0", len(none))
	}
}
