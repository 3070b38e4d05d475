package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.json")
	return NewStore(path, 30*24*time.Hour, 10*24*time.Hour, zerolog.Nop())
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	store := NewStore(path, 30*24*time.Hour, 10*24*time.Hour, zerolog.Nop())
	store.Load()

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.PutItem(ItemRecord{
		Signature:   "sig-1",
		Title:       "創見法說會",
		RawLink:     "https://news.google.com/x",
		FinalLink:   "https://publisher.example.com/a",
		PublishedAt: &published,
		Publisher:   "鉅亨網",
	})
	store.PutAnalysis(AnalysisRecord{
		EntityID: "2451",
		Payload:  json.RawMessage(`{"phase":"整理"}`),
	})

	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := NewStore(path, 30*24*time.Hour, 10*24*time.Hour, zerolog.Nop())
	reopened.Load()

	item, ok := reopened.GetItem("sig-1")
	if !ok {
		t.Fatalf("item missing after reload")
	}
	if item.FinalLink != "https://publisher.example.com/a" || item.Publisher != "鉅亨網" {
		t.Fatalf("item fields lost: %+v", item)
	}
	if item.PublishedAt == nil || !item.PublishedAt.Equal(published) {
		t.Fatalf("published_at lost: %+v", item.PublishedAt)
	}
	if item.CachedAt.IsZero() {
		t.Fatalf("cached_at not stamped")
	}

	analysis, ok := reopened.GetAnalysis("2451")
	if !ok {
		t.Fatalf("analysis missing after reload")
	}
	if string(analysis.Payload) != `{"phase":"整理"}` {
		t.Fatalf("analysis payload = %s", analysis.Payload)
	}
}

func TestStoreSweepTTLBoundaries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	store := testStore(t)

	store.PutItem(ItemRecord{Signature: "fresh", CachedAt: now.Add(-29 * 24 * time.Hour)})
	store.PutItem(ItemRecord{Signature: "stale", CachedAt: now.Add(-31 * 24 * time.Hour)})
	store.PutAnalysis(AnalysisRecord{EntityID: "fresh", Payload: json.RawMessage(`{}`), CachedAt: now.Add(-9 * 24 * time.Hour)})
	store.PutAnalysis(AnalysisRecord{EntityID: "stale", Payload: json.RawMessage(`{}`), CachedAt: now.Add(-11 * 24 * time.Hour)})

	removed := store.Sweep(now)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, ok := store.GetItem("fresh"); !ok {
		t.Fatalf("29-day item swept")
	}
	if _, ok := store.GetItem("stale"); ok {
		t.Fatalf("31-day item survived")
	}
	if _, ok := store.GetAnalysis("fresh"); !ok {
		t.Fatalf("9-day analysis swept")
	}
	if _, ok := store.GetAnalysis("stale"); ok {
		t.Fatalf("11-day analysis survived")
	}

	if again := store.Sweep(now); again != 0 {
		t.Fatalf("second sweep removed %d, want 0", again)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "absent.json"), time.Hour, time.Hour, zerolog.Nop())
	store.Load()

	if store.ItemCount() != 0 || store.AnalysisCount() != 0 {
		t.Fatalf("missing snapshot did not yield empty store")
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := NewStore(path, time.Hour, time.Hour, zerolog.Nop())
	store.Load()

	if store.ItemCount() != 0 {
		t.Fatalf("corrupt snapshot did not yield empty store")
	}

	// A later save must repair the file.
	store.PutItem(ItemRecord{Signature: "sig"})
	if err := store.Save(); err != nil {
		t.Fatalf("Save over corrupt file: %v", err)
	}

	reopened := NewStore(path, time.Hour, time.Hour, zerolog.Nop())
	reopened.Load()
	if reopened.ItemCount() != 1 {
		t.Fatalf("repaired snapshot lost the item")
	}
}

func TestStoreOverwriteKeepsLatest(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	store.PutItem(ItemRecord{Signature: "sig", Title: "first"})
	store.PutItem(ItemRecord{Signature: "sig", Title: "second"})

	item, _ := store.GetItem("sig")
	if item.Title != "second" {
		t.Fatalf("title = %q, want second", item.Title)
	}
	if store.ItemCount() != 1 {
		t.Fatalf("items = %d, want 1", store.ItemCount())
	}
}

func TestStoreIgnoresEmptyKeys(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	store.PutItem(ItemRecord{Signature: ""})
	store.PutAnalysis(AnalysisRecord{EntityID: ""})

	if store.ItemCount() != 0 || store.AnalysisCount() != 0 {
		t.Fatalf("empty-keyed records stored")
	}
}
