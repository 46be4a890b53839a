package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyland-inc/relayclaw/pkg/config"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunFromEnv(t *testing.T) {
	envPath := writeEnvFile(t, `
# legacy relay deployment
API_KEY=secret-token
export PORT=9000
SESSION_TIMEOUT_MINUTES=45
MESSAGE_TTL_SECONDS=120
MAX_MESSAGES_PER_SESSION=50
DISCORD_BOT_TOKEN="discord-token"
UNRELATED_VAR=ignored
`)
	outPath := filepath.Join(t.TempDir(), "config.json")

	result, err := RunFromEnv(FromEnvOptions{EnvPath: envPath, OutputPath: outPath})
	if err != nil {
		t.Fatalf("RunFromEnv: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	cfg, err := config.LoadConfig(outPath)
	if err != nil {
		t.Fatalf("loading migrated config: %v", err)
	}
	if cfg.Relay.APIToken != "secret-token" {
		t.Errorf("api_token = %q", cfg.Relay.APIToken)
	}
	if cfg.Relay.Port != 9000 {
		t.Errorf("port = %d", cfg.Relay.Port)
	}
	if cfg.Session.TimeoutMinutes != 45 || cfg.Session.MessageTTLSeconds != 120 {
		t.Errorf("session config = %+v", cfg.Session)
	}
	if cfg.Session.MaxMessagesPerSession != 50 {
		t.Errorf("max messages = %d", cfg.Session.MaxMessagesPerSession)
	}
	if !cfg.Channels.Discord.Enabled || cfg.Channels.Discord.Token != "discord-token" {
		t.Errorf("discord config = %+v", cfg.Channels.Discord)
	}
}

func TestRunFromEnvDryRunWritesNothing(t *testing.T) {
	envPath := writeEnvFile(t, "API_KEY=x\n")
	outPath := filepath.Join(t.TempDir(), "config.json")

	result, err := RunFromEnv(FromEnvOptions{EnvPath: envPath, OutputPath: outPath, DryRun: true})
	if err != nil {
		t.Fatalf("RunFromEnv: %v", err)
	}
	if len(result.Applied) != 1 {
		t.Errorf("applied = %v", result.Applied)
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Error("dry run must not write the output file")
	}
}

func TestRunFromEnvRefusesOverwrite(t *testing.T) {
	envPath := writeEnvFile(t, "API_KEY=x\n")
	outPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(outPath, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := RunFromEnv(FromEnvOptions{EnvPath: envPath, OutputPath: outPath})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected overwrite refusal, got %v", err)
	}

	if _, err := RunFromEnv(FromEnvOptions{EnvPath: envPath, OutputPath: outPath, Force: true}); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}
}

func TestRunFromEnvMissingFile(t *testing.T) {
	_, err := RunFromEnv(FromEnvOptions{EnvPath: filepath.Join(t.TempDir(), "nope.env")})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestApplyEnvVarsWarnings(t *testing.T) {
	result := &FromEnvResult{}
	cfg := config.DefaultConfig()
	applyEnvVars(cfg, map[string]string{
		"PORT":            "not-a-number",
		"API_KEY":         "",
		"SLACK_BOT_TOKEN": "xoxb-1",
	}, result)

	if len(result.Warnings) != 3 {
		t.Errorf("warnings = %v, want 3", result.Warnings)
	}
	if cfg.Relay.Port != config.DefaultConfig().Relay.Port {
		t.Error("invalid PORT should keep the default")
	}
	if cfg.Channels.Slack.Enabled {
		t.Error("slack must stay disabled without the app token")
	}
}
