package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := writeConfig(t, `irc:
  server: irc.example.net
  nick: feedbot
  channels:
    - name: "#news"
      feeds: [https://example.com/a.xml]
`)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestManagerAddRemoveFeed(t *testing.T) {
	m := newTestManager(t)

	if err := m.AddFeed("#news", "https://example.com/b.xml"); err != nil {
		t.Fatalf("AddFeed failed: %v", err)
	}
	if err := m.AddFeed("#news", "https://example.com/b.xml"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate AddFeed: got %v, want ErrDuplicate", err)
	}
	if err := m.AddFeed("#nope", "https://example.com/c.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddFeed to unknown channel: got %v, want ErrNotFound", err)
	}

	snap := m.Snapshot()
	if feeds := snap.Channel("#news").Feeds; len(feeds) != 2 {
		t.Fatalf("feeds = %v, want 2 entries", feeds)
	}

	if err := m.RemoveFeed("#news", "https://example.com/a.xml"); err != nil {
		t.Fatalf("RemoveFeed failed: %v", err)
	}
	if err := m.RemoveFeed("#news", "https://example.com/a.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveFeed: got %v, want ErrNotFound", err)
	}

	// The on-disk file reflects the final state.
	reloaded, err := Load(m.Path())
	if err != nil {
		t.Fatalf("reload persisted config: %v", err)
	}
	feeds := reloaded.Channel("#news").Feeds
	if len(feeds) != 1 || feeds[0] != "https://example.com/b.xml" {
		t.Errorf("persisted feeds = %v", feeds)
	}
}

func TestManagerAddRemoveChannel(t *testing.T) {
	m := newTestManager(t)

	if err := m.AddChannel("#extra"); err != nil {
		t.Fatalf("AddChannel failed: %v", err)
	}
	if err := m.AddChannel("#extra"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate AddChannel: got %v, want ErrDuplicate", err)
	}

	if err := m.RemoveChannel("#extra"); err != nil {
		t.Fatalf("RemoveChannel failed: %v", err)
	}
	if err := m.RemoveChannel("#extra"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveChannel: got %v, want ErrNotFound", err)
	}

	reloaded, err := Load(m.Path())
	if err != nil {
		t.Fatalf("reload persisted config: %v", err)
	}
	if len(reloaded.IRC.Channels) != 1 {
		t.Errorf("persisted channels = %v", reloaded.ChannelNames())
	}
}

func TestManagerSnapshotIsolation(t *testing.T) {
	m := newTestManager(t)

	snap := m.Snapshot()
	snap.IRC.Channels[0].Feeds[0] = "mutated"

	if m.Snapshot().Channel("#news").Feeds[0] != "https://example.com/a.xml" {
		t.Error("snapshot mutation leaked into the manager")
	}
}

func TestManagerReloadValidEdit(t *testing.T) {
	m := newTestManager(t)
	ch := m.Subscribe()

	edit := `irc:
  server: irc.example.net
  nick: feedbot
  channels:
    - name: "#news"
      feeds: [https://example.com/a.xml]
    - name: "#fresh"
      feeds: [https://x/feed.xml]
`
	if err := os.WriteFile(m.Path(), []byte(edit), 0644); err != nil {
		t.Fatalf("write edit: %v", err)
	}
	m.reload()

	snap := m.Snapshot()
	if snap.Channel("#fresh") == nil {
		t.Fatal("external edit not applied")
	}
	select {
	case <-ch:
	default:
		t.Error("no change notification after reload")
	}
}

func TestManagerReloadBadEditKeepsSnapshot(t *testing.T) {
	m := newTestManager(t)

	if err := os.WriteFile(m.Path(), []byte("irc: [broken\n"), 0644); err != nil {
		t.Fatalf("write edit: %v", err)
	}
	m.reload()

	if m.Snapshot().Channel("#news") == nil {
		t.Error("bad edit replaced the snapshot")
	}
}

func TestManagerReloadKeepsConcurrentMutations(t *testing.T) {
	m := newTestManager(t)

	// Hammer reloads while feeds are being added: every mutation commits
	// its write-through under the same lock the reload parses under, so
	// no stale parse may ever swap a committed feed out of the snapshot.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.reload()
		}
	}()

	const feeds = 50
	for i := 0; i < feeds; i++ {
		url := fmt.Sprintf("https://example.com/%d.xml", i)
		if err := m.AddFeed("#news", url); err != nil {
			t.Fatalf("AddFeed %s failed: %v", url, err)
		}
	}
	<-done

	got := make(map[string]bool)
	for _, u := range m.Snapshot().Channel("#news").Feeds {
		got[u] = true
	}
	for i := 0; i < feeds; i++ {
		url := fmt.Sprintf("https://example.com/%d.xml", i)
		if !got[url] {
			t.Errorf("committed feed %s missing from snapshot after reload", url)
		}
	}
}

func TestManagerMutationRollsBackOnSaveFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "feedbot.yaml")
	cfgYAML := `irc:
  server: irc.example.net
  nick: feedbot
  channels:
    - name: "#news"
      feeds: [https://example.com/a.xml]
`
	if err := os.WriteFile(path, []byte(cfgYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	// Losing the directory makes the write-through fail.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	if err := m.AddFeed("#news", "https://example.com/b.xml"); err == nil {
		t.Fatal("AddFeed succeeded without a writable config")
	}

	// The failed mutation must not linger in the snapshot.
	for _, u := range m.Snapshot().Channel("#news").Feeds {
		if u == "https://example.com/b.xml" {
			t.Fatal("failed AddFeed left the feed in memory")
		}
	}
}

func TestManagerSelfWriteSuppressed(t *testing.T) {
	m := newTestManager(t)
	if err := m.AddFeed("#news", "https://example.com/b.xml"); err != nil {
		t.Fatalf("AddFeed failed: %v", err)
	}

	// The watcher event our own save produced must not trigger a reload.
	m.reload()
	if m.selfWrites != 0 {
		t.Errorf("selfWrites = %d after suppression, want 0", m.selfWrites)
	}
	if feeds := m.Snapshot().Channel("#news").Feeds; len(feeds) != 2 {
		t.Errorf("feeds = %v, want 2 entries", feeds)
	}
}
