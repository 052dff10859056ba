package irc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tbernard/feedbot/internal/logger"
)

// EventType classifies session events.
type EventType int

const (
	// EventMessage — a parsed inbound line not consumed by the session itself.
	EventMessage EventType = iota
	// EventConnected — the session reached Ready.
	EventConnected
	// EventDisconnected — the link went down; a reconnect is scheduled.
	EventDisconnected
)

// Event is what the session surfaces to its consumer.
type Event struct {
	Type EventType
	Msg  *Message
}

// Options configures a Session. Zero durations get working defaults.
type Options struct {
	Server   string
	Port     int
	Nick     string
	Password string
	Channels []string

	// Delay throttles outbound lines against server-side flood protection.
	Delay time.Duration

	DialTimeout     time.Duration
	ActivityTimeout time.Duration // silence before the session pings the server
	PingGrace       time.Duration // wait for the pong before tearing down
	MinBackoff      time.Duration
	MaxBackoff      time.Duration
	StablePeriod    time.Duration // Ready time after which backoff resets

	// Dialer is replaceable for tests. Defaults to a TCP dial.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

func (o *Options) setDefaults() {
	if o.Delay == 0 {
		o.Delay = 2 * time.Second
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.ActivityTimeout == 0 {
		o.ActivityTimeout = 4 * time.Minute
	}
	if o.PingGrace == 0 {
		o.PingGrace = time.Minute
	}
	if o.MinBackoff == 0 {
		o.MinBackoff = 2 * time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.StablePeriod == 0 {
		o.StablePeriod = 5 * time.Minute
	}
	if o.Dialer == nil {
		dialTimeout := o.DialTimeout
		o.Dialer = func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
}

// Session owns the wire connection: it registers, joins channels, keeps the
// link alive and reconnects with bounded exponential backoff. Inbound lines
// it does not consume are surfaced on Events(); outbound messages are
// queued and flushed in order through the flood throttle.
type Session struct {
	opts Options

	mu       sync.Mutex
	state    State
	nick     string
	channels map[string]bool // desired channel -> confirmed joined
	readyAt  time.Time       // when the current connection reached Ready

	wmu  sync.Mutex // serializes socket writes
	outq chan string

	events chan Event
}

// NewSession creates a session; Run starts it.
func NewSession(opts Options) *Session {
	opts.setDefaults()
	s := &Session{
		opts:     opts,
		state:    StateDisconnected,
		nick:     opts.Nick,
		channels: make(map[string]bool, len(opts.Channels)),
		outq:     make(chan string, 256),
		events:   make(chan Event, 64),
	}
	for _, ch := range opts.Channels {
		s.channels[ch] = false
	}
	return s
}

// Events delivers parsed messages and connection state changes.
func (s *Session) Events() <-chan Event { return s.events }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Nick returns the nick currently in use (may differ from the configured
// one after a collision).
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	old := s.state
	s.state = st
	s.mu.Unlock()
	if old != st {
		logger.Debugf("[irc] %s -> %s", old, st)
	}
}

// Privmsg queues a message for target. Order per target is preserved; if
// the queue is full (prolonged disconnect) the message is dropped with a
// warning rather than blocking the producer.
func (s *Session) Privmsg(target, text string) {
	s.enqueue(fmt.Sprintf("PRIVMSG %s :%s", target, text))
}

func (s *Session) enqueue(line string) {
	select {
	case s.outq <- line:
	default:
		logger.Warnf("[irc] outbound queue full, dropping: %s", line)
	}
}

// SyncChannels reconciles the desired channel set. While connected the
// difference is applied with incremental JOIN/PART, no reconnect.
func (s *Session) SyncChannels(names []string) {
	desired := make(map[string]struct{}, len(names))
	for _, n := range names {
		desired[n] = struct{}{}
	}

	s.mu.Lock()
	var joins, parts []string
	for _, n := range names {
		if _, ok := s.channels[n]; !ok {
			s.channels[n] = false
			joins = append(joins, n)
		}
	}
	for n := range s.channels {
		if _, ok := desired[n]; !ok {
			delete(s.channels, n)
			parts = append(parts, n)
		}
	}
	// Pruning may have removed the last channel still pending its JOIN.
	all := true
	for _, joined := range s.channels {
		all = all && joined
	}
	nowReady := s.state == StateJoining && len(parts) > 0 && all
	connected := s.state == StateJoining || s.state == StateReady
	s.mu.Unlock()

	if !connected {
		return
	}
	for _, n := range joins {
		s.enqueue("JOIN " + n)
	}
	for _, n := range parts {
		s.enqueue("PART " + n)
	}
	if nowReady {
		s.markReady()
	}
}

// Run drives the connect/reconnect loop until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.opts.MinBackoff
	for {
		readyFor, err := s.runOnce(ctx)
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case s.events <- Event{Type: EventDisconnected}:
		default:
		}

		if readyFor >= s.opts.StablePeriod {
			backoff = s.opts.MinBackoff
		}
		logger.Warnf("[irc] connection lost: %v (reconnecting in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

// runOnce runs a single connection to completion and reports how long it
// spent in Ready.
func (s *Session) runOnce(ctx context.Context) (time.Duration, error) {
	s.setState(StateConnecting)
	addr := net.JoinHostPort(s.opts.Server, strconv.Itoa(s.opts.Port))
	conn, err := s.opts.Dialer(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Shutdown path: a QUIT is attempted before the socket drops.
	go func() {
		<-connCtx.Done()
		if ctx.Err() != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.rawWrite(conn, "QUIT :going down")
		}
		conn.Close()
	}()

	s.mu.Lock()
	s.nick = s.opts.Nick
	s.readyAt = time.Time{}
	for ch := range s.channels {
		s.channels[ch] = false
	}
	s.mu.Unlock()

	if s.opts.Password != "" {
		if err := s.rawWrite(conn, "PASS "+s.opts.Password); err != nil {
			return 0, err
		}
	}
	if err := s.rawWrite(conn, "NICK "+s.opts.Nick); err != nil {
		return 0, err
	}
	if err := s.rawWrite(conn, fmt.Sprintf("USER %s 0 * :%s", s.opts.Nick, s.opts.Nick)); err != nil {
		return 0, err
	}
	s.setState(StateRegistering)

	go s.writeLoop(connCtx, conn)

	err = s.readLoop(connCtx, conn)
	cancel()

	s.mu.Lock()
	readyAt := s.readyAt
	s.mu.Unlock()
	var readyFor time.Duration
	if !readyAt.IsZero() {
		readyFor = time.Since(readyAt)
	}
	return readyFor, err
}

// writeLoop flushes the outbound queue in order, one line per Delay.
func (s *Session) writeLoop(ctx context.Context, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-s.outq:
			if err := s.rawWrite(conn, line); err != nil {
				logger.Warnf("[irc] write failed: %v", err)
				conn.Close()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.Delay):
			}
		}
	}
}

// readLoop parses inbound lines until the link dies. Keepalive: after
// ActivityTimeout of silence it pings the server itself and gives the pong
// PingGrace to arrive.
func (s *Session) readLoop(ctx context.Context, conn net.Conn) error {
	reader := bufio.NewReader(conn)
	pinged := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ActivityTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() && !pinged {
				pinged = true
				_ = conn.SetReadDeadline(time.Now().Add(s.opts.PingGrace))
				if werr := s.rawWrite(conn, "PING :keepalive"); werr != nil {
					return werr
				}
				continue
			}
			return err
		}
		pinged = false

		msg, perr := ParseMessage(line)
		if perr != nil {
			logger.Debugf("[irc] skipping malformed line: %v", perr)
			continue
		}
		if err := s.handle(conn, msg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// handle reacts to the protocol lines the session owns and forwards the
// rest as events.
func (s *Session) handle(conn net.Conn, msg *Message) error {
	switch msg.Command {
	case "PING":
		// Answered immediately, never behind the flood throttle.
		return s.rawWrite(conn, "PONG :"+msg.Text())

	case RplWelcome:
		s.setState(StateJoining)
		s.mu.Lock()
		chans := make([]string, 0, len(s.channels))
		for ch := range s.channels {
			chans = append(chans, ch)
		}
		empty := len(s.channels) == 0
		s.mu.Unlock()
		for _, ch := range chans {
			if err := s.rawWrite(conn, "JOIN "+ch); err != nil {
				return err
			}
		}
		if empty {
			s.markReady()
		}
		return nil

	case ErrNicknameInUse:
		s.mu.Lock()
		s.nick += "_"
		nick := s.nick
		s.mu.Unlock()
		logger.Warnf("[irc] nick in use, trying %s", nick)
		return s.rawWrite(conn, "NICK "+nick)

	case "JOIN":
		if msg.Prefix != nil && msg.Prefix.Nick == s.Nick() {
			s.mu.Lock()
			if _, ok := s.channels[msg.Target()]; ok {
				s.channels[msg.Target()] = true
			}
			all := true
			for _, joined := range s.channels {
				all = all && joined
			}
			s.mu.Unlock()
			if all {
				s.markReady()
			}
			return nil
		}

	case "KICK":
		if len(msg.Params) >= 2 && msg.Params[1] == s.Nick() {
			s.mu.Lock()
			if _, ok := s.channels[msg.Target()]; ok {
				s.channels[msg.Target()] = false
			}
			s.mu.Unlock()
			logger.Warnf("[irc] kicked from %s, rejoining", msg.Target())
			s.enqueue("JOIN " + msg.Target())
			return nil
		}

	case "ERROR":
		return fmt.Errorf("server error: %s", msg.Text())
	}

	select {
	case s.events <- Event{Type: EventMessage, Msg: msg}:
	default:
		logger.Warnf("[irc] event queue full, dropping %s", msg.Command)
	}
	return nil
}

func (s *Session) markReady() {
	s.mu.Lock()
	if s.readyAt.IsZero() {
		s.readyAt = time.Now()
	}
	s.mu.Unlock()
	s.setState(StateReady)
	select {
	case s.events <- Event{Type: EventConnected}:
	default:
	}
}

// rawWrite sends one line on the socket. Writes from the read loop (PONG)
// and the write loop are serialized.
func (s *Session) rawWrite(conn net.Conn, line string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	line = strings.TrimRight(line, "\r\n")
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}
