// Package config owns the bot configuration: file load, hot-reload and the
// runtime mutations driven by admin commands.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	IRC   IRCConfig   `yaml:"irc"`
	Feeds FeedsConfig `yaml:"feeds"`
	Log   LogConfig   `yaml:"log"`
}

// IRCConfig describes the server connection and the channel subscriptions.
type IRCConfig struct {
	Server   string            `yaml:"server"`
	Port     int               `yaml:"port"`
	Nick     string            `yaml:"nick"`
	Password string            `yaml:"password,omitempty"`
	Channels []Channel         `yaml:"channels"`
	Ops      []string          `yaml:"ops"`
	Delay    Duration          `yaml:"delay"`
	Colors   map[string]string `yaml:"colors"`
}

// Channel is one IRC channel and the feeds posted into it.
type Channel struct {
	Name  string   `yaml:"name"`
	Feeds []string `yaml:"feeds"`
}

// FeedsConfig holds the polling knobs shared by all feeds.
type FeedsConfig struct {
	Interval    Duration `yaml:"interval"`
	MaxBackoff  Duration `yaml:"max_backoff"`
	Timeout     Duration `yaml:"timeout"`
	MaxAge      Duration `yaml:"max_age"`
	MaxNews     int      `yaml:"max_news"`
	RingSize    int      `yaml:"ring_size"`
	PostBacklog bool     `yaml:"post_backlog"`
	StateFile   string   `yaml:"state_file"`
	ArchiveFile string   `yaml:"archive_file"`
}

// LogConfig is the logging section.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSize    int    `yaml:"max_size,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"`
}

// Duration parses YAML scalars like "30m" or "2s" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and parses the YAML configuration file.
// ${VAR_NAME} references are expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// setDefaults fills unset fields with working defaults.
func setDefaults(cfg *Config) {
	if cfg.IRC.Port == 0 {
		cfg.IRC.Port = 6667
	}
	if cfg.IRC.Delay == 0 {
		cfg.IRC.Delay = Duration(2 * time.Second)
	}
	if cfg.IRC.Colors == nil {
		cfg.IRC.Colors = map[string]string{}
	}
	for key, def := range defaultColors {
		if _, ok := cfg.IRC.Colors[key]; !ok {
			cfg.IRC.Colors[key] = def
		}
	}
	if cfg.Feeds.Interval == 0 {
		cfg.Feeds.Interval = Duration(30 * time.Minute)
	}
	if cfg.Feeds.MaxBackoff == 0 {
		cfg.Feeds.MaxBackoff = Duration(4 * time.Hour)
	}
	if cfg.Feeds.Timeout == 0 {
		cfg.Feeds.Timeout = Duration(10 * time.Second)
	}
	if cfg.Feeds.MaxAge == 0 {
		cfg.Feeds.MaxAge = Duration(time.Hour)
	}
	if cfg.Feeds.MaxNews == 0 {
		cfg.Feeds.MaxNews = 10
	}
	if cfg.Feeds.RingSize == 0 {
		cfg.Feeds.RingSize = 100
	}
	if cfg.Feeds.StateFile == "" {
		cfg.Feeds.StateFile = "feedbot-seen.json"
	}
	if cfg.Feeds.ArchiveFile == "" {
		cfg.Feeds.ArchiveFile = "feedbot-archive.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// validate rejects configurations the bot cannot start with.
// An empty channel list is valid; feeds can be subscribed at runtime.
func validate(cfg *Config) error {
	if cfg.IRC.Server == "" {
		return fmt.Errorf("irc.server is required")
	}
	if cfg.IRC.Nick == "" {
		return fmt.Errorf("irc.nick is required")
	}
	seen := make(map[string]struct{}, len(cfg.IRC.Channels))
	for _, ch := range cfg.IRC.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel with empty name")
		}
		if _, dup := seen[ch.Name]; dup {
			return fmt.Errorf("duplicate channel %s", ch.Name)
		}
		seen[ch.Name] = struct{}{}
		feeds := make(map[string]struct{}, len(ch.Feeds))
		for _, url := range ch.Feeds {
			if _, dup := feeds[url]; dup {
				return fmt.Errorf("channel %s subscribes %s twice", ch.Name, url)
			}
			feeds[url] = struct{}{}
		}
	}
	for key, name := range cfg.IRC.Colors {
		if _, ok := defaultColors[key]; !ok {
			return fmt.Errorf("unknown color slot %q", key)
		}
		if _, ok := colorCodes[name]; !ok {
			return fmt.Errorf("unknown color %q for slot %q", name, key)
		}
	}
	return nil
}

// Clone returns a deep copy of cfg.
func (c *Config) Clone() *Config {
	out := *c
	out.IRC.Channels = make([]Channel, len(c.IRC.Channels))
	for i, ch := range c.IRC.Channels {
		out.IRC.Channels[i] = Channel{
			Name:  ch.Name,
			Feeds: append([]string(nil), ch.Feeds...),
		}
	}
	out.IRC.Ops = append([]string(nil), c.IRC.Ops...)
	out.IRC.Colors = make(map[string]string, len(c.IRC.Colors))
	for k, v := range c.IRC.Colors {
		out.IRC.Colors[k] = v
	}
	return &out
}

// Channel returns the channel entry with the given name, or nil.
func (c *Config) Channel(name string) *Channel {
	for i := range c.IRC.Channels {
		if c.IRC.Channels[i].Name == name {
			return &c.IRC.Channels[i]
		}
	}
	return nil
}

// ChannelNames returns the configured channel names in order.
func (c *Config) ChannelNames() []string {
	names := make([]string, len(c.IRC.Channels))
	for i, ch := range c.IRC.Channels {
		names[i] = ch.Name
	}
	return names
}

// Subscriptions inverts the channel list into feed URL -> subscribing channels.
func (c *Config) Subscriptions() map[string][]string {
	subs := make(map[string][]string)
	for _, ch := range c.IRC.Channels {
		for _, url := range ch.Feeds {
			subs[url] = append(subs[url], ch.Name)
		}
	}
	return subs
}
