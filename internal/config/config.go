// Package config manages bancho server configuration using koanf/v2.
//
// Supports a YAML file, environment variable overrides, and (for the
// listen address and database path only) CLI flags, layered in that order.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every recognized option from spec.md §6.
type Config struct {
	Addr   string `koanf:"addr"`
	DBPath string `koanf:"db_path"`
	RPC    RPCConfig `koanf:"rpc"`

	SessionTimeoutSeconds          int `koanf:"session_timeout"`
	SessionRecycleIntervalSeconds  int `koanf:"session_recycle_interval"`
	NotifyMessagesRecycleSeconds   int `koanf:"notify_messages_recycle_interval"`
	ChannelMessagesRecycleSeconds  int `koanf:"channel_messages_recycle_interval"`

	LoginEnabled            bool     `koanf:"login_enabled"`
	LoginDisallowedIP       []string `koanf:"login_disallowed_ip"`
	LoginRetryMax           int      `koanf:"login_retry_max"`
	LoginRetryExpireSeconds int      `koanf:"login_retry_expire_seconds"`

	OnlineUsersLimit bool `koanf:"online_users_limit"`
	OnlineUsersMax   int  `koanf:"online_users_max"`

	MessageMaxLength int      `koanf:"message_max_length"`
	SensitiveWords   []string `koanf:"sensitive_words"`

	MenuIcon string   `koanf:"menu_icon"`
	OsuAPIKeys []string `koanf:"osu_api_keys"`

	// TokenKey is the login-token signing secret. Empty means the daemon
	// mints an ephemeral key at startup (sessions are not durable across
	// restarts anyway, but a fixed key keeps tokens valid across a rolling
	// pair of processes).
	TokenKey string `koanf:"token_key"`

	AutoJoinChannels []ChannelConfig `koanf:"channels"`

	Log LogConfig `koanf:"log"`
}

// RPCConfig selects and configures the RPC shim (component H).
type RPCConfig struct {
	// Mode is "local" (in-process) or "remote" (gRPC).
	Mode string `koanf:"mode"`
	// Addr is the gRPC listen/dial address when Mode is "remote".
	Addr string `koanf:"addr"`
	// CallTimeoutSeconds is the configured per-call RPC timeout (default 5).
	// Only config-check reads it; the remote client applies its own fixed
	// 5s default when the caller's context has no deadline.
	CallTimeoutSeconds int `koanf:"call_timeout_seconds"`
}

// ChannelConfig declares a channel to seed at startup (§3, §4.D).
type ChannelConfig struct {
	Name            string `koanf:"name"`
	Title           string `koanf:"title"`
	ReadCapability  uint32 `koanf:"read_capability"`
	WriteCapability uint32 `koanf:"write_capability"`
	AutoJoin        bool   `koanf:"auto_join"`
	AutoClose       bool   `koanf:"auto_close"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// envPrefix is the environment variable prefix for bancho configuration.
// Flat keys map directly (BANCHO_SESSION_TIMEOUT -> session_timeout);
// nested keys use a double underscore (BANCHO_RPC__ADDR -> rpc.addr).
const envPrefix = "BANCHO_"

// Default returns a Config populated with the defaults spec.md §6 names.
func Default() *Config {
	return &Config{
		Addr:   ":8080",
		DBPath: "bancho.db",
		RPC: RPCConfig{
			Mode:               "local",
			CallTimeoutSeconds: 5,
		},
		SessionTimeoutSeconds:         180,
		SessionRecycleIntervalSeconds: 180,
		NotifyMessagesRecycleSeconds:  300,
		ChannelMessagesRecycleSeconds: 300,
		LoginEnabled:                  true,
		LoginRetryMax:                 5,
		LoginRetryExpireSeconds:       300,
		OnlineUsersLimit:              false,
		MessageMaxLength:              2048,
		AutoJoinChannels: []ChannelConfig{
			{Name: "#osu", Title: "Main channel", AutoJoin: true},
			{Name: "#announce", Title: "Announcements", AutoJoin: true, WriteCapability: 1 << 13},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load merges defaults, an optional YAML file at path (skipped if path is
// empty or does not exist), and BANCHO_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k, Default()); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("config: load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// loadDefaults seeds k with the default configuration as the base layer,
// the same shape dantte-lp-gobfd's config loader uses before overlaying a
// file and environment variables.
func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaults := map[string]any{
		"addr":                              d.Addr,
		"db_path":                           d.DBPath,
		"rpc.mode":                          d.RPC.Mode,
		"rpc.addr":                          d.RPC.Addr,
		"rpc.call_timeout_seconds":          d.RPC.CallTimeoutSeconds,
		"session_timeout":                   d.SessionTimeoutSeconds,
		"session_recycle_interval":          d.SessionRecycleIntervalSeconds,
		"notify_messages_recycle_interval":  d.NotifyMessagesRecycleSeconds,
		"channel_messages_recycle_interval": d.ChannelMessagesRecycleSeconds,
		"login_enabled":                     d.LoginEnabled,
		"login_retry_max":                   d.LoginRetryMax,
		"login_retry_expire_seconds":        d.LoginRetryExpireSeconds,
		"online_users_limit":                d.OnlineUsersLimit,
		"online_users_max":                  d.OnlineUsersMax,
		"message_max_length":                d.MessageMaxLength,
		"menu_icon":                         d.MenuIcon,
		"token_key":                         d.TokenKey,
		"log.level":                         d.Log.Level,
		"log.format":                        d.Log.Format,
	}
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	if err := k.Set("channels", d.AutoJoinChannels); err != nil {
		return fmt.Errorf("set default channels: %w", err)
	}
	if err := k.Set("login_disallowed_ip", d.LoginDisallowedIP); err != nil {
		return fmt.Errorf("set default login_disallowed_ip: %w", err)
	}
	if err := k.Set("sensitive_words", d.SensitiveWords); err != nil {
		return fmt.Errorf("set default sensitive_words: %w", err)
	}
	if err := k.Set("osu_api_keys", d.OsuAPIKeys); err != nil {
		return fmt.Errorf("set default osu_api_keys: %w", err)
	}
	return nil
}

// envKeyMapper transforms BANCHO_SESSION_TIMEOUT -> session_timeout and
// BANCHO_RPC__ADDR -> rpc.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects configuration values that would make the server
// internally inconsistent.
func Validate(c *Config) error {
	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session_timeout must be > 0")
	}
	if c.SessionRecycleIntervalSeconds <= 0 {
		return fmt.Errorf("session_recycle_interval must be > 0")
	}
	if c.LoginRetryMax < 0 {
		return fmt.Errorf("login_retry_max must be >= 0")
	}
	if c.RPC.Mode != "local" && c.RPC.Mode != "remote" {
		return fmt.Errorf("rpc.mode must be \"local\" or \"remote\", got %q", c.RPC.Mode)
	}
	return nil
}
