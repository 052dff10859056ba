package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tbernard/feedbot/internal/logger"
)

// feedRecord is the persisted per-feed state.
type feedRecord struct {
	Hashes    []string  `json:"hashes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SeenStore maps feed URLs to the identifiers already posted. The poller
// is its sole writer; an identifier present here is never posted again.
type SeenStore struct {
	mu    sync.RWMutex
	path  string
	ring  int
	feeds map[string]*feedRecord
	index map[string]map[string]struct{}
}

// NewSeenStore loads the store at path, tolerating a missing file. Each
// feed keeps at most ring identifiers, oldest dropped first.
func NewSeenStore(path string, ring int) (*SeenStore, error) {
	if ring <= 0 {
		ring = 100
	}
	s := &SeenStore{
		path:  path,
		ring:  ring,
		feeds: make(map[string]*feedRecord),
		index: make(map[string]map[string]struct{}),
	}
	if err := s.load(); err != nil {
		logger.Warnf("[feed] seen store unreadable, starting empty: %v", err)
		s.feeds = make(map[string]*feedRecord)
		s.index = make(map[string]map[string]struct{})
	}
	return s, nil
}

func (s *SeenStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &s.feeds); err != nil {
		return err
	}
	for url, rec := range s.feeds {
		set := make(map[string]struct{}, len(rec.Hashes))
		for _, h := range rec.Hashes {
			set[h] = struct{}{}
		}
		s.index[url] = set
	}
	return nil
}

// Known reports whether the feed has ever been recorded, which is how the
// poller distinguishes a first poll from an incremental one.
func (s *SeenStore) Known(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.feeds[url]
	return ok
}

// Contains reports whether hash was already posted for url.
func (s *SeenStore) Contains(url, hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.index[url]
	if !ok {
		return false
	}
	_, seen := set[hash]
	return seen
}

// Add records hashes for url, trimming the ring from the oldest end.
func (s *SeenStore) Add(url string, hashes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.feeds[url]
	if !ok {
		rec = &feedRecord{}
		s.feeds[url] = rec
		s.index[url] = make(map[string]struct{})
	}
	set := s.index[url]
	for _, h := range hashes {
		if _, dup := set[h]; dup {
			continue
		}
		rec.Hashes = append(rec.Hashes, h)
		set[h] = struct{}{}
	}
	for len(rec.Hashes) > s.ring {
		delete(set, rec.Hashes[0])
		rec.Hashes = rec.Hashes[1:]
	}
	rec.UpdatedAt = time.Now()
}

// Prune drops records of feeds outside the active set whose last update is
// older than grace, so an accidental re-subscription does not repost old
// news but the store does not grow forever.
func (s *SeenStore) Prune(active map[string]struct{}, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-grace)
	for url, rec := range s.feeds {
		if _, ok := active[url]; ok {
			continue
		}
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.feeds, url)
			delete(s.index, url)
			logger.Infof("[feed] pruned seen history of %s", url)
		}
	}
}

// Save writes the store atomically (temp file + rename).
func (s *SeenStore) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.feeds, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("serialize seen store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".feedbot-seen-*")
	if err != nil {
		return fmt.Errorf("write seen store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write seen store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write seen store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace seen store: %w", err)
	}
	return nil
}
