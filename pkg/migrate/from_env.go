// Package migrate converts legacy .env deployments to the JSON config this
// relay reads. The old Node services configured everything through
// environment files (API_KEY, SESSION_TIMEOUT_MINUTES, ...).
package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tinyland-inc/relayclaw/pkg/config"
)

// FromEnvOptions controls .env-to-JSON config migration.
type FromEnvOptions struct {
	EnvPath    string // .env input path (default: ./.env)
	OutputPath string // JSON output path (default: ~/.relayclaw/config.json)
	DryRun     bool
	Force      bool
}

// FromEnvResult summarizes the conversion.
type FromEnvResult struct {
	OutputPath string
	Applied    []string
	Warnings   []string
}

// legacy .env keys and where they land in the config.
var legacyKeys = map[string]string{
	"API_KEY":                  "relay.api_token",
	"WEBHOOK_KEY":              "relay.webhook_key",
	"PORT":                     "relay.port",
	"SESSION_TIMEOUT_MINUTES":  "session.timeout_minutes",
	"MESSAGE_TTL_SECONDS":      "session.message_ttl_seconds",
	"MAX_MESSAGES_PER_SESSION": "session.max_messages_per_session",
	"DISCORD_BOT_TOKEN":        "channels.discord.token",
	"TELEGRAM_BOT_TOKEN":       "channels.telegram.token",
	"SLACK_BOT_TOKEN":          "channels.slack.bot_token",
	"SLACK_APP_TOKEN":          "channels.slack.app_token",
}

// RunFromEnv reads a legacy .env file and writes the equivalent JSON config.
func RunFromEnv(opts FromEnvOptions) (*FromEnvResult, error) {
	envPath := opts.EnvPath
	if envPath == "" {
		envPath = ".env"
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		outputPath = filepath.Join(home, ".relayclaw", "config.json")
	}

	vars, err := parseEnvFile(envPath)
	if err != nil {
		return nil, err
	}

	result := &FromEnvResult{OutputPath: outputPath}
	cfg := config.DefaultConfig()
	applyEnvVars(cfg, vars, result)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("migrated config invalid: %w", err)
	}

	if opts.DryRun {
		return result, nil
	}

	if !opts.Force {
		if _, err := os.Stat(outputPath); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
	}

	if err := config.SaveConfig(outputPath, cfg); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	return result, nil
}

// parseEnvFile reads KEY=VALUE lines, ignoring comments and blanks. Quoted
// values are unwrapped; "export " prefixes are tolerated.
func parseEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("env file not found: %s", path)
		}
		return nil, fmt.Errorf("opening env file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if key != "" {
			vars[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return vars, nil
}

func applyEnvVars(cfg *config.Config, vars map[string]string, result *FromEnvResult) {
	intVal := func(key, raw string) (int, bool) {
		n, err := strconv.Atoi(raw)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: not a number: %q", key, raw))
			return 0, false
		}
		return n, true
	}

	for key, raw := range vars {
		target, known := legacyKeys[key]
		if !known {
			continue
		}
		if raw == "" {
			result.Warnings = append(result.Warnings, key+": empty value skipped")
			continue
		}

		switch key {
		case "API_KEY":
			cfg.Relay.APIToken = raw
		case "WEBHOOK_KEY":
			cfg.Relay.WebhookKey = raw
		case "PORT":
			if n, ok := intVal(key, raw); ok {
				cfg.Relay.Port = n
			} else {
				continue
			}
		case "SESSION_TIMEOUT_MINUTES":
			if n, ok := intVal(key, raw); ok {
				cfg.Session.TimeoutMinutes = n
			} else {
				continue
			}
		case "MESSAGE_TTL_SECONDS":
			if n, ok := intVal(key, raw); ok {
				cfg.Session.MessageTTLSeconds = n
			} else {
				continue
			}
		case "MAX_MESSAGES_PER_SESSION":
			if n, ok := intVal(key, raw); ok {
				cfg.Session.MaxMessagesPerSession = n
			} else {
				continue
			}
		case "DISCORD_BOT_TOKEN":
			cfg.Channels.Discord.Token = raw
			cfg.Channels.Discord.Enabled = true
		case "TELEGRAM_BOT_TOKEN":
			cfg.Channels.Telegram.Token = raw
			cfg.Channels.Telegram.Enabled = true
		case "SLACK_BOT_TOKEN":
			cfg.Channels.Slack.BotToken = raw
		case "SLACK_APP_TOKEN":
			cfg.Channels.Slack.AppToken = raw
		}

		result.Applied = append(result.Applied, key+" -> "+target)
	}

	// Slack needs both tokens before it can run.
	if cfg.Channels.Slack.BotToken != "" && cfg.Channels.Slack.AppToken != "" {
		cfg.Channels.Slack.Enabled = true
	} else if cfg.Channels.Slack.BotToken != "" || cfg.Channels.Slack.AppToken != "" {
		result.Warnings = append(result.Warnings,
			"slack: both SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required; channel left disabled")
	}
}
