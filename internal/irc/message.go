// Package irc implements the bot side of the IRC client protocol: a line
// codec and a reconnecting session state machine that owns the socket.
package irc

import (
	"fmt"
	"strings"
)

// Reply numerics the session reacts to.
const (
	RplWelcome       = "001"
	ErrNicknameInUse = "433"
)

// Prefix is the optional origin of a message: a server name or a
// nick!user@host triple.
type Prefix struct {
	Nick string
	User string
	Host string
}

// Name returns the sender nick, or the server name for server prefixes.
func (p *Prefix) Name() string {
	if p.Nick != "" {
		return p.Nick
	}
	return p.Host
}

// Hostmask reassembles nick!user@host.
func (p *Prefix) Hostmask() string {
	if p.User == "" && p.Nick == "" {
		return p.Host
	}
	return fmt.Sprintf("%s!%s@%s", p.Nick, p.User, p.Host)
}

// Message is one parsed protocol line.
type Message struct {
	Prefix  *Prefix
	Command string
	Params  []string
}

// Text returns the trailing parameter, usually the message body.
func (m *Message) Text() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// Target returns the first parameter, the destination of PRIVMSG and
// similar commands.
func (m *Message) Target() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[0]
}

// ParseMessage splits a raw line into prefix, command and parameters per
// the RFC 1459 line grammar. The caller strips the CRLF.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}

	msg := &Message{}

	if line[0] == ':' {
		idx := strings.IndexByte(line, ' ')
		if idx < 0 {
			return nil, fmt.Errorf("prefix without command: %q", line)
		}
		msg.Prefix = parsePrefix(line[1:idx])
		line = strings.TrimLeft(line[idx+1:], " ")
	}

	// Everything after " :" is a single trailing parameter.
	var trailing string
	hasTrailing := false
	if idx := strings.Index(line, " :"); idx >= 0 {
		trailing = line[idx+2:]
		hasTrailing = true
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing command: %q", line)
	}
	msg.Command = strings.ToUpper(fields[0])
	msg.Params = fields[1:]
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}
	return msg, nil
}

func parsePrefix(raw string) *Prefix {
	p := &Prefix{}
	bang := strings.IndexByte(raw, '!')
	at := strings.IndexByte(raw, '@')
	switch {
	case bang >= 0 && at > bang:
		p.Nick = raw[:bang]
		p.User = raw[bang+1 : at]
		p.Host = raw[at+1:]
	case at >= 0:
		p.Nick = raw[:at]
		p.Host = raw[at+1:]
	default:
		// No separators: a server name.
		p.Host = raw
	}
	return p
}
