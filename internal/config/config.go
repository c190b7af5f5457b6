package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by Load when the corresponding field is absent.
const (
	DefaultPageLimit            = 20
	DefaultConversationInterval = 30 * time.Second
	DefaultNotificationInterval = 60 * time.Second
	DefaultUnreadCountInterval  = 15 * time.Second
	DefaultRequestTimeout       = 10 * time.Second
)

// Config represents the global ~/.hmsg/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	Platform Platform `toml:"platform"`
	Refresh  Refresh  `toml:"refresh"`
	Snapshot Snapshot `toml:"snapshot"`
}

// Platform holds the REST collaborator settings.
type Platform struct {
	BaseURL   string   `toml:"base_url"`
	StreamURL string   `toml:"stream_url"` // websocket push endpoint; empty disables the stream
	Token     string   `toml:"token"`
	UserID    string   `toml:"user_id"`
	Role      string   `toml:"role"` // agency, owner, agent, tenant, external
	PageLimit int      `toml:"page_limit"`
	Timeout   duration `toml:"timeout"`
}

// Refresh holds the periodic reconcile intervals.
type Refresh struct {
	Conversations duration `toml:"conversations"`
	Notifications duration `toml:"notifications"`
	UnreadCount   duration `toml:"unread_count"`
}

// Snapshot controls the warm-start cache on disk.
type Snapshot struct {
	Disabled bool `toml:"disabled"`
}

// duration wraps time.Duration for TOML string values like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads config from the given path and fills defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Platform.PageLimit <= 0 {
		c.Platform.PageLimit = DefaultPageLimit
	}
	if c.Platform.Timeout.Duration <= 0 {
		c.Platform.Timeout.Duration = DefaultRequestTimeout
	}
	if c.Refresh.Conversations.Duration <= 0 {
		c.Refresh.Conversations.Duration = DefaultConversationInterval
	}
	if c.Refresh.Notifications.Duration <= 0 {
		c.Refresh.Notifications.Duration = DefaultNotificationInterval
	}
	if c.Refresh.UnreadCount.Duration <= 0 {
		c.Refresh.UnreadCount.Duration = DefaultUnreadCountInterval
	}
}
