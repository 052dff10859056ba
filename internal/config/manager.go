package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/tbernard/feedbot/internal/logger"
)

// Manager is the single writer for the configuration. It serializes
// command-driven mutations against file-driven hot-reloads; readers only
// ever see complete snapshots.
type Manager struct {
	mu   sync.Mutex
	path string
	cfg  *Config

	// subs receive a coalesced signal whenever the active snapshot is
	// replaced, by either path.
	subs []chan struct{}

	// selfWrites counts pending watcher events caused by our own save,
	// so a write-through does not bounce back as a reload.
	selfWrites int
}

// NewManager loads the file at path and returns a manager owning it.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{
		path: path,
		cfg:  cfg,
	}, nil
}

// Snapshot returns an immutable point-in-time copy of the configuration.
func (m *Manager) Snapshot() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// Subscribe returns a channel signalling snapshot replacements. Signals
// are buffered and coalesced; consumers re-read Snapshot() on receive.
func (m *Manager) Subscribe() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{}, 1)
	m.subs = append(m.subs, ch)
	return ch
}

// notifyLocked fans a change signal out to all subscribers; m.mu held.
func (m *Manager) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch monitors the backing file for external edits until ctx is done.
// A valid edit atomically replaces the snapshot; a malformed one is logged
// and the previous snapshot stays active. The parent directory is watched
// so editors that rename-replace the file are still seen.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(m.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[config] watcher error: %v", err)
		}
	}
}

// reload re-parses the backing file after an external modification. The
// lock is held across read, parse and swap so a command mutation can never
// commit in between and be overwritten by a stale parse.
func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selfWrites > 0 {
		m.selfWrites--
		return
	}

	cfg, err := Load(m.path)
	if err != nil {
		logger.Warnf("[config] ignoring bad external edit: %v", err)
		return
	}

	m.cfg = cfg
	m.notifyLocked()
	logger.Infof("[config] reloaded %s", m.path)
}

// commitLocked swaps next in as the active snapshot and writes it through
// to disk. A failed save restores the previous snapshot so memory and disk
// never diverge. Callers hold m.mu.
func (m *Manager) commitLocked(next *Config) error {
	prev := m.cfg
	m.cfg = next
	if err := m.saveLocked(); err != nil {
		m.cfg = prev
		return err
	}
	return nil
}

// AddFeed subscribes channel to url and writes the config through to disk.
func (m *Manager) AddFeed(channel, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.Clone()
	ch := next.Channel(channel)
	if ch == nil {
		return fmt.Errorf("channel %s: %w", channel, ErrNotFound)
	}
	for _, u := range ch.Feeds {
		if u == url {
			return fmt.Errorf("feed %s in %s: %w", url, channel, ErrDuplicate)
		}
	}
	ch.Feeds = append(ch.Feeds, url)
	return m.commitLocked(next)
}

// RemoveFeed unsubscribes channel from url and writes through to disk.
func (m *Manager) RemoveFeed(channel, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.Clone()
	ch := next.Channel(channel)
	if ch == nil {
		return fmt.Errorf("channel %s: %w", channel, ErrNotFound)
	}
	for i, u := range ch.Feeds {
		if u == url {
			ch.Feeds = append(ch.Feeds[:i], ch.Feeds[i+1:]...)
			return m.commitLocked(next)
		}
	}
	return fmt.Errorf("feed %s in %s: %w", url, channel, ErrNotFound)
}

// AddChannel adds a channel with no subscriptions and writes through.
func (m *Manager) AddChannel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Channel(name) != nil {
		return fmt.Errorf("channel %s: %w", name, ErrDuplicate)
	}
	next := m.cfg.Clone()
	next.IRC.Channels = append(next.IRC.Channels, Channel{Name: name})
	return m.commitLocked(next)
}

// RemoveChannel drops a channel and its subscriptions and writes through.
func (m *Manager) RemoveChannel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.Clone()
	for i := range next.IRC.Channels {
		if next.IRC.Channels[i].Name == name {
			next.IRC.Channels = append(next.IRC.Channels[:i], next.IRC.Channels[i+1:]...)
			return m.commitLocked(next)
		}
	}
	return fmt.Errorf("channel %s: %w", name, ErrNotFound)
}

// saveLocked serializes the current snapshot to a temp file and renames it
// over the backing file, so a crash mid-write never corrupts it.
// Callers hold m.mu.
func (m *Manager) saveLocked() error {
	data, err := yaml.Marshal(m.cfg)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".feedbot-config-*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}

	m.selfWrites++
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		m.selfWrites--
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}

	m.notifyLocked()
	return nil
}
