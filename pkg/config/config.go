package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Relay     RelayConfig     `json:"relay"`
	Session   SessionConfig   `json:"session"`
	Channels  ChannelsConfig  `json:"channels"`
	Archive   ArchiveConfig   `json:"archive"`
	Tailscale TailscaleConfig `json:"tailscale"`
}

// TailscaleConfig enables tailnet integration: the relay joins as a tsnet
// node and can pull secrets from Setec instead of the config file.
type TailscaleConfig struct {
	Enabled  bool   `env:"RELAYCLAW_TAILSCALE_ENABLED"  json:"enabled"`
	Hostname string `env:"RELAYCLAW_TAILSCALE_HOSTNAME" json:"hostname,omitempty"`
	StateDir string `env:"RELAYCLAW_TAILSCALE_STATE_DIR" json:"state_dir,omitempty"`
	AuthKey  string `env:"RELAYCLAW_TAILSCALE_AUTH_KEY" json:"auth_key,omitempty"`

	Setec SetecConfig `json:"setec"`
}

type SetecConfig struct {
	Enabled bool   `env:"RELAYCLAW_SETEC_ENABLED"  json:"enabled"`
	BaseURL string `env:"RELAYCLAW_SETEC_BASE_URL" json:"base_url,omitempty"`
	Prefix  string `env:"RELAYCLAW_SETEC_PREFIX"   json:"prefix,omitempty"`
}

// RelayConfig holds the HTTP relay surface settings.
type RelayConfig struct {
	Host       string `env:"RELAYCLAW_RELAY_HOST"        json:"host"`
	Port       int    `env:"RELAYCLAW_RELAY_PORT"        json:"port"`
	APIToken   string `env:"RELAYCLAW_RELAY_API_TOKEN"   json:"api_token"`
	WebhookKey string `env:"RELAYCLAW_RELAY_WEBHOOK_KEY" json:"webhook_key,omitempty"`
	// MaxBatch caps the number of messages a single poll may drain.
	MaxBatch     int `env:"RELAYCLAW_RELAY_MAX_BATCH"     json:"max_batch"`
	DefaultBatch int `env:"RELAYCLAW_RELAY_DEFAULT_BATCH" json:"default_batch"`
}

// SessionConfig holds session and queue lifetime settings.
type SessionConfig struct {
	TimeoutMinutes        int `env:"RELAYCLAW_SESSION_TIMEOUT_MINUTES"   json:"timeout_minutes"`
	MessageTTLSeconds     int `env:"RELAYCLAW_SESSION_MESSAGE_TTL"       json:"message_ttl_seconds"`
	MaxMessagesPerSession int `env:"RELAYCLAW_SESSION_MAX_MESSAGES"      json:"max_messages_per_session"`
	SweepIntervalSeconds  int `env:"RELAYCLAW_SESSION_SWEEP_INTERVAL"    json:"sweep_interval_seconds"`
	AckTTLSeconds         int `env:"RELAYCLAW_SESSION_ACK_TTL"           json:"ack_ttl_seconds"`
}

func (s SessionConfig) Timeout() time.Duration       { return time.Duration(s.TimeoutMinutes) * time.Minute }
func (s SessionConfig) MessageTTL() time.Duration    { return time.Duration(s.MessageTTLSeconds) * time.Second }
func (s SessionConfig) SweepInterval() time.Duration { return time.Duration(s.SweepIntervalSeconds) * time.Second }
func (s SessionConfig) AckTTL() time.Duration        { return time.Duration(s.AckTTLSeconds) * time.Second }

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"RELAYCLAW_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"RELAYCLAW_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type SlackConfig struct {
	Enabled   bool                `env:"RELAYCLAW_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"RELAYCLAW_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AppToken  string              `env:"RELAYCLAW_CHANNELS_SLACK_APP_TOKEN"  json:"app_token"`
	AllowFrom FlexibleStringSlice `env:"RELAYCLAW_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

// ArchiveConfig holds optional durable delivery archiving settings.
// When enabled, delivered messages and ack records are mirrored into a
// DynamoDB table with a native TTL attribute.
type ArchiveConfig struct {
	Enabled   bool   `env:"RELAYCLAW_ARCHIVE_ENABLED"    json:"enabled"`
	TableName string `env:"RELAYCLAW_ARCHIVE_TABLE_NAME" json:"table_name"`
	Region    string `env:"RELAYCLAW_ARCHIVE_REGION"     json:"region,omitempty"`
	TTLDays   int    `env:"RELAYCLAW_ARCHIVE_TTL_DAYS"   json:"ttl_days"`
}

// DefaultConfig returns the built-in defaults. Session lifetimes follow the
// relay's production deployment: 30 minute session timeout, 5 minute message
// TTL, 100 message queue bound, 60 second sweep.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:         "127.0.0.1",
			Port:         8787,
			MaxBatch:     100,
			DefaultBatch: 10,
		},
		Session: SessionConfig{
			TimeoutMinutes:        30,
			MessageTTLSeconds:     300,
			MaxMessagesPerSession: 100,
			SweepIntervalSeconds:  60,
			AckTTLSeconds:         3600,
		},
		Archive: ArchiveConfig{
			TTLDays: 30,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Env vars still apply on top of defaults
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks for settings the relay cannot run with.
func (c *Config) Validate() error {
	if c.Relay.Port <= 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port %d out of range", c.Relay.Port)
	}
	if c.Session.MaxMessagesPerSession <= 0 {
		return errors.New("session.max_messages_per_session must be positive")
	}
	if c.Session.MessageTTLSeconds <= 0 {
		return errors.New("session.message_ttl_seconds must be positive")
	}
	if c.Session.TimeoutMinutes <= 0 {
		return errors.New("session.timeout_minutes must be positive")
	}
	if c.Relay.DefaultBatch <= 0 || c.Relay.DefaultBatch > c.Relay.MaxBatch {
		return fmt.Errorf("relay.default_batch %d must be in 1..%d", c.Relay.DefaultBatch, c.Relay.MaxBatch)
	}
	if c.Archive.Enabled && c.Archive.TableName == "" {
		return errors.New("archive.table_name is required when archive is enabled")
	}
	return nil
}

// Addr returns the host:port the relay HTTP server listens on.
func (r RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
