package proxy

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pcxsh/hardcoreban/pkg/store"
)

// Config is the proxy-side configuration, loaded from YAML with flag
// overrides applied by main.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Link     LinkConfig     `yaml:"link"`
	Gate     GateConfig     `yaml:"gate"`
	Messages Messages       `yaml:"messages"`

	RefreshIntervalSeconds int `yaml:"refresh-interval-seconds"` // advisory cache refresh
}

// DatabaseConfig locates the shared ban store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LinkConfig addresses the game server's notification hub.
type LinkConfig struct {
	URL            string `yaml:"url"` // ws://host:port/link (empty = link disabled)
	Token          string `yaml:"token"`
	BackoffSeconds int    `yaml:"backoff-seconds"`
}

// GateConfig names the backend the connect gate guards.
type GateConfig struct {
	RestrictedServer string `yaml:"restricted-server"`
}

// Messages are the user-facing denial templates. {time} is substituted with
// the human-readable remaining duration.
type Messages struct {
	DenyTitle    string `yaml:"deny-title"`
	DenySubtitle string `yaml:"deny-subtitle"`
	DenyChat     string `yaml:"deny-chat"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Path: "hardcoreban.db"},
		Link: LinkConfig{
			BackoffSeconds: 10,
		},
		Gate: GateConfig{RestrictedServer: "hardcore"},
		Messages: Messages{
			DenyTitle:    "You are banned!",
			DenySubtitle: "{time} remaining",
			DenyChat:     "You are banned from hardcore for another {time}.",
		},
		RefreshIntervalSeconds: 30,
	}
}

// LoadConfig reads a YAML config file, layering it over the defaults. A
// missing file yields the defaults; a malformed file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("proxy: config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("proxy: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("proxy: parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Link.BackoffSeconds <= 0 {
		c.Link.BackoffSeconds = def.Link.BackoffSeconds
	}
	if c.RefreshIntervalSeconds <= 0 {
		slog.Warn("proxy: invalid refresh interval, using default", "seconds", c.RefreshIntervalSeconds, "default", def.RefreshIntervalSeconds)
		c.RefreshIntervalSeconds = def.RefreshIntervalSeconds
	}
	if c.Gate.RestrictedServer == "" {
		c.Gate.RestrictedServer = def.Gate.RestrictedServer
	}
}

// RefreshInterval is the advisory cache refresh period.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// LinkBackoff is the delay between link dial attempts.
func (c *Config) LinkBackoff() time.Duration {
	return time.Duration(c.Link.BackoffSeconds) * time.Second
}

// StoreConfig derives the ban store configuration.
func (c *Config) StoreConfig() store.Config {
	sc := store.DefaultConfig()
	sc.Path = c.Database.Path
	return sc
}
