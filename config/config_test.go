package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SETTINGS_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTPAddr != ":5002" {
		t.Errorf("HTTPAddr = %q, want :5002", cfg.HTTPAddr)
	}
	if cfg.SettingsFile != "data/settings.json" {
		t.Errorf("SettingsFile = %q, want data/settings.json", cfg.SettingsFile)
	}
}

func TestLoadTokenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.txt")
	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_TOKEN_FILE", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DiscordToken != "file-token" {
		t.Errorf("DiscordToken = %q, want file-token", cfg.DiscordToken)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.txt")
	if err := os.WriteFile(path, []byte("file-token"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("DISCORD_TOKEN_FILE", path)
	cfg, _ := Load()
	if cfg.DiscordToken != "env-token" {
		t.Errorf("DiscordToken = %q, want env-token", cfg.DiscordToken)
	}
}

func TestValidateDiscordReady(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	cfg, _ := Load()
	if err := cfg.ValidateDiscordReady(); err != nil {
		t.Errorf("expected valid discord config, got %v", err)
	}

	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_TOKEN_FILE", filepath.Join(t.TempDir(), "absent.txt"))
	cfg, _ = Load()
	if err := cfg.ValidateDiscordReady(); err == nil {
		t.Error("expected error when discord token missing")
	}
}

func TestValidateEventSubReady(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("WEBHOOK_CALLBACK_URL", "https://bot.example/twitch-webhook")
	cfg, _ := Load()
	if err := cfg.ValidateEventSubReady(); err != nil {
		t.Errorf("expected valid eventsub config, got %v", err)
	}

	t.Setenv("WEBHOOK_CALLBACK_URL", "")
	cfg, _ = Load()
	if err := cfg.ValidateEventSubReady(); err == nil {
		t.Error("expected error when callback URL missing")
	}
}
