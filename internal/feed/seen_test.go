package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const feedURL = "https://example.com/feed.xml"

func TestSeenStoreAddContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	store, err := NewSeenStore(path, 100)
	if err != nil {
		t.Fatalf("NewSeenStore failed: %v", err)
	}

	if store.Known(feedURL) {
		t.Error("fresh store should not know the feed")
	}
	if store.Contains(feedURL, "abcd1234") {
		t.Error("fresh store should not contain anything")
	}

	store.Add(feedURL, "abcd1234", "ef567890")
	if !store.Known(feedURL) {
		t.Error("feed should be known after Add")
	}
	if !store.Contains(feedURL, "abcd1234") || !store.Contains(feedURL, "ef567890") {
		t.Error("added hashes missing")
	}
	if store.Contains(feedURL, "00000000") {
		t.Error("unknown hash reported as seen")
	}
}

func TestSeenStorePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")

	store, err := NewSeenStore(path, 100)
	if err != nil {
		t.Fatalf("NewSeenStore failed: %v", err)
	}
	store.Add(feedURL, "abcd1234")
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := NewSeenStore(path, 100)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.Contains(feedURL, "abcd1234") {
		t.Error("hash lost across restart")
	}
}

func TestSeenStoreRingBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	store, err := NewSeenStore(path, 3)
	if err != nil {
		t.Fatalf("NewSeenStore failed: %v", err)
	}

	store.Add(feedURL, "h1", "h2", "h3", "h4", "h5")
	if store.Contains(feedURL, "h1") || store.Contains(feedURL, "h2") {
		t.Error("oldest hashes should have been trimmed")
	}
	for _, h := range []string{"h3", "h4", "h5"} {
		if !store.Contains(feedURL, h) {
			t.Errorf("recent hash %s trimmed", h)
		}
	}
}

func TestSeenStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := NewSeenStore(path, 100)
	if err != nil {
		t.Fatalf("NewSeenStore should tolerate corruption: %v", err)
	}
	if store.Known(feedURL) {
		t.Error("corrupt store should start empty")
	}
}

func TestSeenStorePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	store, err := NewSeenStore(path, 100)
	if err != nil {
		t.Fatalf("NewSeenStore failed: %v", err)
	}

	store.Add("https://kept.example.com/f.xml", "h1")
	store.Add("https://dropped.example.com/f.xml", "h2")
	store.Add("https://fresh.example.com/f.xml", "h3")

	// Age two records beyond the grace period.
	store.mu.Lock()
	old := time.Now().Add(-48 * time.Hour)
	store.feeds["https://kept.example.com/f.xml"].UpdatedAt = old
	store.feeds["https://dropped.example.com/f.xml"].UpdatedAt = old
	store.mu.Unlock()

	active := map[string]struct{}{"https://kept.example.com/f.xml": {}}
	store.Prune(active, 24*time.Hour)

	if !store.Known("https://kept.example.com/f.xml") {
		t.Error("active feed pruned")
	}
	if store.Known("https://dropped.example.com/f.xml") {
		t.Error("stale unsubscribed feed not pruned")
	}
	if !store.Known("https://fresh.example.com/f.xml") {
		t.Error("unsubscribed feed pruned before its grace expired")
	}
}
