package dispatch

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/tbernard/feedbot/internal/config"
	"github.com/tbernard/feedbot/internal/irc"
	"github.com/tbernard/feedbot/internal/logger"
)

var helpLines = []string{
	"!lsfeeds [channel]        list subscribed feeds",
	"!latest <n> [origin]      show the n most recently posted items",
	"!addfeed <channel> <url>  subscribe channel to a feed (ops)",
	"!rmfeed <channel> <url>   unsubscribe channel from a feed (ops)",
	"!addchan <channel>        join and manage a new channel (ops)",
	"!rmchan <channel>         part and drop a channel (ops)",
	"!xpost <hash> <channel>   cross-post an archived item (ops)",
	"!die                      shut the bot down (ops)",
}

// handleCommand parses one private-message line against the command
// grammar. Anything unrecognized gets the help text, never a crash.
func (d *Dispatcher) handleCommand(sender *irc.Prefix, text string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]
	nick := sender.Name()

	switch cmd {
	case "!help":
		d.replyHelp(nick)

	case "!lsfeeds":
		d.listFeeds(nick, args)

	case "!latest":
		d.latest(nick, args)

	case "!addfeed", "!rmfeed", "!addchan", "!rmchan", "!xpost", "!die":
		if !d.isOp(sender) {
			d.session.Privmsg(nick, "you are not allowed to do that")
			logger.Warnf("[dispatch] unauthorized %s from %s", cmd, sender.Hostmask())
			return
		}
		d.opCommand(nick, cmd, args)

	default:
		d.replyHelp(nick)
	}
}

// opCommand runs the mutating commands; the caller has already checked
// authorization.
func (d *Dispatcher) opCommand(nick, cmd string, args []string) {
	switch cmd {
	case "!addfeed":
		if len(args) != 2 {
			d.session.Privmsg(nick, "usage: !addfeed <channel> <url>")
			return
		}
		d.replyResult(nick, "feed added", d.cfg.AddFeed(args[0], args[1]))

	case "!rmfeed":
		if len(args) != 2 {
			d.session.Privmsg(nick, "usage: !rmfeed <channel> <url>")
			return
		}
		d.replyResult(nick, "feed removed", d.cfg.RemoveFeed(args[0], args[1]))

	case "!addchan":
		if len(args) != 1 {
			d.session.Privmsg(nick, "usage: !addchan <channel>")
			return
		}
		d.replyResult(nick, "channel added", d.cfg.AddChannel(args[0]))

	case "!rmchan":
		if len(args) != 1 {
			d.session.Privmsg(nick, "usage: !rmchan <channel>")
			return
		}
		d.replyResult(nick, "channel removed", d.cfg.RemoveChannel(args[0]))

	case "!xpost":
		d.xpost(nick, args)

	case "!die":
		d.session.Privmsg(nick, "going down")
		logger.Infof("[dispatch] shutdown requested by %s", nick)
		d.shutdown()
	}
}

func (d *Dispatcher) replyHelp(nick string) {
	for _, line := range helpLines {
		d.session.Privmsg(nick, line)
	}
}

// replyResult turns a mutation outcome into a reply: the success text or
// the specific failure.
func (d *Dispatcher) replyResult(nick, success string, err error) {
	if err != nil {
		d.session.Privmsg(nick, err.Error())
		return
	}
	d.session.Privmsg(nick, success)
}

func (d *Dispatcher) listFeeds(nick string, args []string) {
	snap := d.cfg.Snapshot()
	channels := snap.IRC.Channels
	if len(args) > 0 {
		ch := snap.Channel(args[0])
		if ch == nil {
			d.session.Privmsg(nick, fmt.Sprintf("no such channel: %s", args[0]))
			return
		}
		channels = []config.Channel{*ch}
	}

	n := 0
	for _, ch := range channels {
		for _, url := range ch.Feeds {
			d.session.Privmsg(nick, fmt.Sprintf("%d. %s (%s)", n, url, ch.Name))
			n++
		}
	}
	if n == 0 {
		d.session.Privmsg(nick, "no feeds subscribed")
	}
}

func (d *Dispatcher) latest(nick string, args []string) {
	if len(args) == 0 {
		d.session.Privmsg(nick, "usage: !latest <number> [origin]")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		d.session.Privmsg(nick, "!latest: not a number: "+args[0])
		return
	}
	origin := strings.Join(args[1:], " ")

	items, err := d.arch.Latest(n, origin)
	if err != nil {
		logger.Warnf("[dispatch] latest query failed: %v", err)
		d.session.Privmsg(nick, "archive lookup failed")
		return
	}
	if len(items) == 0 {
		d.session.Privmsg(nick, "nothing archived yet")
		return
	}
	snap := d.cfg.Snapshot()
	for _, item := range items {
		d.session.Privmsg(nick, formatNews(snap, item))
	}
}

// xpost reposts an archived item into another channel, credited to the
// requester.
func (d *Dispatcher) xpost(nick string, args []string) {
	if len(args) != 2 {
		d.session.Privmsg(nick, "usage: !xpost <hash> <channel>")
		return
	}
	hash := strings.TrimPrefix(args[0], "#")
	channel := args[1]

	if d.cfg.Snapshot().Channel(channel) == nil {
		d.session.Privmsg(nick, fmt.Sprintf("no such channel: %s", channel))
		return
	}
	item, err := d.arch.FindByHash(hash)
	if err != nil {
		logger.Warnf("[dispatch] xpost lookup failed: %v", err)
		d.session.Privmsg(nick, "archive lookup failed")
		return
	}
	if item == nil {
		d.session.Privmsg(nick, "no archived item with hash #"+hash)
		return
	}
	d.session.Privmsg(channel, fmt.Sprintf("%s (from %s)", formatNews(d.cfg.Snapshot(), *item), nick))
	d.session.Privmsg(nick, "cross-posted to "+channel)
}

// isOp checks the sender against the ops list. Entries are either bare
// nicks or nick!user@host masks with * and ? wildcards.
func (d *Dispatcher) isOp(sender *irc.Prefix) bool {
	snap := d.cfg.Snapshot()
	mask := sender.Hostmask()
	for _, op := range snap.IRC.Ops {
		if strings.ContainsAny(op, "!@") {
			if ok, err := path.Match(op, mask); err == nil && ok {
				return true
			}
			continue
		}
		if op == sender.Name() {
			return true
		}
	}
	return false
}
