package config

import (
	"fmt"
	"os"
	"strings"
)

// Config is the full dashboard configuration.
//
// Files are YAML (or JSON); YAML is coerced to JSON and decoded strictly, so
// unknown keys are rejected instead of silently ignored.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Discord DiscordConfig `json:"discord"`
	Logging LoggingConfig `json:"logging"`
	BulkDM  BulkDMConfig  `json:"bulk_dm"`
	Music   *MusicConfig  `json:"music,omitempty"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"`

	// AllowedOrigins restricts CORS; empty means allow all (dev default).
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type DiscordConfig struct {
	// Token may reference an environment variable ("${DISCORD_TOKEN}").
	// When empty, the dashboard only serves tokens presented per-request.
	Token string `json:"token,omitempty"`

	// RestRatePerSec caps outbound Discord REST calls process-wide.
	RestRatePerSec int `json:"rest_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LogFileConfig  `json:"file,omitempty"`
	Stream  LogStreamConfig `json:"stream,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LogStreamConfig controls mirroring server logs to dashboard clients
// over the websocket as "log" envelopes.
type LogStreamConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// BulkDMConfig holds bulk DM pipeline knobs.
//
// All durations are Go duration strings (e.g. "100ms", "2s").
//
// Defaults (when fields are omitted/zero):
//   - batch_size: 100 (clamped to [1,100] at job start)
//   - page_limit: 1000
//   - max_pages: 50
//   - page_delay: "100ms"
type BulkDMConfig struct {
	BatchSize int `json:"batch_size,omitempty"`

	PageLimit int    `json:"page_limit,omitempty"`
	MaxPages  int    `json:"max_pages,omitempty"`
	PageDelay string `json:"page_delay,omitempty"`
}

type MusicConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
}

type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Token   string `json:"token,omitempty"`
}

// Validate checks cross-field constraints and fills nothing in;
// defaulting happens at the point of use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Discord.RestRatePerSec < 0 {
		return fmt.Errorf("discord.rest_rate_per_sec must be >= 0")
	}
	if c.BulkDM.BatchSize < 0 {
		return fmt.Errorf("bulk_dm.batch_size must be >= 0")
	}
	if c.BulkDM.PageLimit < 0 || c.BulkDM.PageLimit > 1000 {
		return fmt.Errorf("bulk_dm.page_limit must be within [0,1000]")
	}
	if c.BulkDM.MaxPages < 0 {
		return fmt.Errorf("bulk_dm.max_pages must be >= 0")
	}
	if _, err := ParseDurationField("bulk_dm.page_delay", c.BulkDM.PageDelay); err != nil {
		return err
	}
	if c.Music != nil && c.Music.Enabled && strings.TrimSpace(c.Music.Host) == "" {
		return fmt.Errorf("music.host is required when music.enabled")
	}
	return nil
}

// BotToken resolves the configured token, expanding ${VAR} references.
func (c *Config) BotToken() string {
	return strings.TrimSpace(os.ExpandEnv(c.Discord.Token))
}
