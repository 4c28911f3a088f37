package gameserver

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pcxsh/hardcoreban/pkg/store"
)

// Duration units accepted for the ban length.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

// Config is the game-server configuration, loaded from YAML with flag
// overrides applied by main.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ban      BanConfig      `yaml:"ban"`
	Reset    ResetConfig    `yaml:"reset"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Link     LinkConfig     `yaml:"link"`
	Messages Messages       `yaml:"messages"`

	HTTPAddr string `yaml:"http-addr"` // /metrics, /healthz and /link (empty = disabled)
}

// DatabaseConfig locates the shared ban store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BanConfig controls how death bans are issued.
type BanConfig struct {
	DurationUnit    string `yaml:"duration-unit"`   // minutes or hours
	DurationAmount  int    `yaml:"duration-amount"` // length in the chosen unit
	AffectAllWorlds bool   `yaml:"affect-all-worlds"`
	HardcoreWorld   string `yaml:"hardcore-world"`
	SpectateOnDeath bool   `yaml:"set-spectator-on-death"`

	KickDelaySeconds int `yaml:"kick-delay-seconds"` // grace between death notice and disconnect
}

// ResetConfig controls state restoration when a ban lapses.
type ResetConfig struct {
	Mode    string `yaml:"mode"`
	Message string `yaml:"message"`
}

// SweepConfig controls the periodic background tasks.
type SweepConfig struct {
	CheckIntervalSeconds     int `yaml:"check-interval-seconds"`
	KeepaliveIntervalSeconds int `yaml:"keepalive-interval-seconds"`
}

// LinkConfig guards the proxy notification link.
type LinkConfig struct {
	Token string `yaml:"token"`
}

// Messages are the user-facing templates. {time} is substituted with the
// human-readable remaining duration.
type Messages struct {
	Death string `yaml:"death"`
	Kick  string `yaml:"kick"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Path: "hardcoreban.db"},
		Ban: BanConfig{
			DurationUnit:    UnitHours,
			DurationAmount:  24,
			AffectAllWorlds:  true,
			SpectateOnDeath:  true,
			KickDelaySeconds: 2,
		},
		Reset: ResetConfig{
			Mode:    "survival",
			Message: "Your hardcore ban has expired. Welcome back!",
		},
		Sweep: SweepConfig{
			CheckIntervalSeconds:     10,
			KeepaliveIntervalSeconds: 60,
		},
		Messages: Messages{
			Death: "You died! You are banned from hardcore for {time}.",
			Kick:  "You are banned from hardcore for another {time}.",
		},
		HTTPAddr: ":9630",
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
			slog.Info("gameserver: config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("gameserver: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("gameserver: parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize replaces invalid values with documented defaults, warning rather
// than failing.
func (c *Config) normalize() {
	def := DefaultConfig()

	switch strings.ToLower(c.Ban.DurationUnit) {
	case UnitMinutes, UnitHours:
		c.Ban.DurationUnit = strings.ToLower(c.Ban.DurationUnit)
	default:
		slog.Warn("gameserver: invalid ban duration unit, defaulting to hours", "unit", c.Ban.DurationUnit)
		c.Ban.DurationUnit = UnitHours
	}
	if c.Ban.DurationAmount <= 0 {
		slog.Warn("gameserver: invalid ban duration amount, using default", "amount", c.Ban.DurationAmount, "default", def.Ban.DurationAmount)
		c.Ban.DurationAmount = def.Ban.DurationAmount
	}
	if c.Ban.KickDelaySeconds <= 0 {
		c.Ban.KickDelaySeconds = def.Ban.KickDelaySeconds
	}
	if c.Sweep.CheckIntervalSeconds <= 0 {
		slog.Warn("gameserver: invalid check interval, using default", "seconds", c.Sweep.CheckIntervalSeconds, "default", def.Sweep.CheckIntervalSeconds)
		c.Sweep.CheckIntervalSeconds = def.Sweep.CheckIntervalSeconds
	}
	if c.Sweep.KeepaliveIntervalSeconds <= 0 {
		c.Sweep.KeepaliveIntervalSeconds = def.Sweep.KeepaliveIntervalSeconds
	}
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
}

// BanDuration converts the configured unit and amount to a duration.
func (c *Config) BanDuration() time.Duration {
	switch c.Ban.DurationUnit {
	case UnitMinutes:
		return time.Duration(c.Ban.DurationAmount) * time.Minute
	default:
		return time.Duration(c.Ban.DurationAmount) * time.Hour
	}
}

// KickDelay is the grace window between the death notice and the disconnect.
func (c *Config) KickDelay() time.Duration {
	return time.Duration(c.Ban.KickDelaySeconds) * time.Second
}

// CheckInterval is the period of the expiry sweep.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Sweep.CheckIntervalSeconds) * time.Second
}

// KeepaliveInterval is the period of the store heartbeat.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Sweep.KeepaliveIntervalSeconds) * time.Second
}

// StoreConfig derives the ban store configuration.
func (c *Config) StoreConfig() store.Config {
	sc := store.DefaultConfig()
	sc.Path = c.Database.Path
	return sc
}
