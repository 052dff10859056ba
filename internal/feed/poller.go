package feed

import (
	"context"
	"sync"
	"time"

	"github.com/tbernard/feedbot/internal/config"
	"github.com/tbernard/feedbot/internal/logger"
)

// pruneGrace is how long the seen history of an unsubscribed feed is kept
// before it is dropped.
const pruneGrace = 30 * 24 * time.Hour

// Delivery is one new item together with the channels subscribed to it.
type Delivery struct {
	URL      string
	Channels []string
	Item     Item
}

// Poller runs one polling worker per subscribed feed and reconciles the
// worker set against configuration snapshots. Workers never block each
// other; a hung fetch delays only its own feed.
type Poller struct {
	cfg     *config.Manager
	store   *SeenStore
	fetcher *Fetcher
	out     chan Delivery
	changes <-chan struct{}

	mu      sync.Mutex
	workers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller wires the poller to the config manager and the seen store.
func NewPoller(cfg *config.Manager, store *SeenStore) *Poller {
	snap := cfg.Snapshot()
	return &Poller{
		cfg:     cfg,
		store:   store,
		fetcher: NewFetcher(snap.Feeds.Timeout.Std()),
		out:     make(chan Delivery, 32),
		changes: cfg.Subscribe(),
		workers: make(map[string]context.CancelFunc),
	}
}

// Items delivers newly discovered entries, oldest-first per feed.
func (p *Poller) Items() <-chan Delivery { return p.out }

// Run reconciles workers until ctx is done, reacting to config changes.
// On shutdown all workers are waited for and the store is flushed.
func (p *Poller) Run(ctx context.Context) error {
	p.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			for _, cancel := range p.workers {
				cancel()
			}
			p.mu.Unlock()
			p.wg.Wait()
			if err := p.store.Save(); err != nil {
				logger.Warnf("[feed] final seen store save failed: %v", err)
			}
			return ctx.Err()
		case <-p.changes:
			p.reconcile(ctx)
		}
	}
}

// reconcile starts workers for newly subscribed feeds and stops the ones
// no channel subscribes anymore.
func (p *Poller) reconcile(ctx context.Context) {
	snap := p.cfg.Snapshot()
	subs := snap.Subscriptions()

	active := make(map[string]struct{}, len(subs))
	for url := range subs {
		active[url] = struct{}{}
	}
	p.store.Prune(active, pruneGrace)

	p.mu.Lock()
	defer p.mu.Unlock()
	for url := range subs {
		if _, running := p.workers[url]; running {
			continue
		}
		wctx, cancel := context.WithCancel(ctx)
		p.workers[url] = cancel
		p.wg.Add(1)
		go p.pollLoop(wctx, url)
		logger.Infof("[feed] polling %s", url)
	}
	for url, cancel := range p.workers {
		if _, ok := subs[url]; !ok {
			cancel()
			delete(p.workers, url)
			logger.Infof("[feed] stopped polling %s", url)
		}
	}
}

// pollLoop ticks one feed at its configured interval, backing off
// exponentially on failure and decaying back after success.
func (p *Poller) pollLoop(ctx context.Context, url string) {
	defer p.wg.Done()

	base := p.cfg.Snapshot().Feeds.Interval.Std()
	interval := base
	// First poll runs immediately so a new subscription takes effect now.
	for {
		snap := p.cfg.Snapshot()
		base = snap.Feeds.Interval.Std()

		err := p.pollOnce(ctx, url, snap)
		if err != nil && ctx.Err() != nil {
			return
		}
		interval = nextInterval(interval, base, snap.Feeds.MaxBackoff.Std(), err != nil)
		if err != nil {
			logger.Warnf("[feed] %s failed: %v (next poll in %s)", url, err, interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// nextInterval computes the delay before a feed's next poll: exponential
// growth while the feed is failing, capped at max, and an immediate return
// to base after a successful poll.
func nextInterval(cur, base, max time.Duration, failed bool) time.Duration {
	if !failed {
		return base
	}
	next := cur * 2
	if next < base {
		next = base * 2
	}
	if next > max {
		next = max
	}
	return next
}

// pollOnce fetches url once, emits the unseen items and persists the
// updated seen set before the next tick may start.
func (p *Poller) pollOnce(ctx context.Context, url string, snap *config.Config) error {
	fetchCtx, cancel := context.WithTimeout(ctx, snap.Feeds.Timeout.Std())
	items, err := p.fetcher.Fetch(fetchCtx, url)
	cancel()
	if err != nil {
		return err
	}

	// First contact with a feed records a baseline instead of flooding the
	// channels with its whole backlog.
	baseline := !p.store.Known(url) && !snap.Feeds.PostBacklog
	channels := snap.Subscriptions()[url]
	maxAge := snap.Feeds.MaxAge.Std()

	posted := 0
	for _, item := range items {
		if p.store.Contains(url, item.Hash) {
			continue
		}
		if baseline {
			p.store.Add(url, item.Hash)
			continue
		}
		if maxAge > 0 && time.Since(item.Published) > maxAge {
			logger.Debugf("[feed] %s: %s too old, skipping", url, item.Hash)
			p.store.Add(url, item.Hash)
			continue
		}
		if posted >= snap.Feeds.MaxNews {
			logger.Warnf("[feed] %s: more than %d new items, deferring the rest", url, snap.Feeds.MaxNews)
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case p.out <- Delivery{URL: url, Channels: channels, Item: item}:
		}
		p.store.Add(url, item.Hash)
		posted++
	}
	if baseline {
		logger.Infof("[feed] %s: baseline of %d items recorded", url, len(items))
	}

	if err := p.store.Save(); err != nil {
		logger.Warnf("[feed] seen store save failed: %v", err)
	}
	return nil
}
