// Package dispatch glues the poller, the IRC session and the config
// manager together: news out, admin commands in.
package dispatch

import (
	"context"
	"fmt"

	"github.com/tbernard/feedbot/internal/archive"
	"github.com/tbernard/feedbot/internal/config"
	"github.com/tbernard/feedbot/internal/feed"
	"github.com/tbernard/feedbot/internal/irc"
	"github.com/tbernard/feedbot/internal/logger"
)

// Messenger is the slice of the IRC session the dispatcher talks to.
type Messenger interface {
	Privmsg(target, text string)
	SyncChannels(names []string)
	Nick() string
	Events() <-chan irc.Event
}

// Dispatcher is the only component referencing all the others. It turns
// poller deliveries into channel posts and private-message commands into
// config mutations.
type Dispatcher struct {
	cfg     *config.Manager
	session Messenger
	items   <-chan feed.Delivery
	arch    *archive.Archive
	changes <-chan struct{}

	// shutdown stops the whole process; wired to !die.
	shutdown context.CancelFunc
}

// New builds the dispatcher.
func New(cfg *config.Manager, session Messenger, poller *feed.Poller, arch *archive.Archive, shutdown context.CancelFunc) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		session:  session,
		items:    poller.Items(),
		arch:     arch,
		changes:  cfg.Subscribe(),
		shutdown: shutdown,
	}
}

// Run pumps events until ctx is done. Deliveries are only consumed while
// the session can actually send them; during an outage the poller blocks
// on its delivery channel before marking anything seen, so no post is
// lost to a full outbound queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	connected := false
	for {
		items := d.items
		if !connected {
			items = nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery := <-items:
			d.post(delivery)
		case ev := <-d.session.Events():
			switch ev.Type {
			case irc.EventConnected:
				connected = true
			case irc.EventDisconnected:
				connected = false
			case irc.EventMessage:
				d.handleMessage(ev.Msg)
			}
		case <-d.changes:
			// Channel list may have changed, by command or external edit.
			d.session.SyncChannels(d.cfg.Snapshot().ChannelNames())
		}
	}
}

// post formats one delivery and enqueues it to every subscribed channel.
func (d *Dispatcher) post(delivery feed.Delivery) {
	snap := d.cfg.Snapshot()
	text := formatNews(snap, delivery.Item)
	for _, channel := range delivery.Channels {
		d.session.Privmsg(channel, text)
	}
	if err := d.arch.Insert(delivery.Item); err != nil {
		logger.Warnf("[dispatch] archive insert failed: %v", err)
	}
}

// formatNews renders "[origin] title link #hash" with the configured
// per-slot colors.
func formatNews(cfg *config.Config, item feed.Item) string {
	return fmt.Sprintf("[%s] %s %s %s",
		cfg.Colorize("origin", item.Origin),
		cfg.Colorize("title", item.Title),
		cfg.Colorize("link", item.Link()),
		cfg.Colorize("hash", "#"+item.Hash),
	)
}

// handleMessage picks the private messages addressed to the bot out of the
// event stream and runs them through the command grammar.
func (d *Dispatcher) handleMessage(msg *irc.Message) {
	if msg.Command != "PRIVMSG" || msg.Prefix == nil {
		return
	}
	if msg.Target() != d.session.Nick() {
		return
	}
	d.handleCommand(msg.Prefix, msg.Text())
}
