// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Credentials may come from env vars or from local credential files; use the
// Validate helpers to enforce the ones a feature requires.
package config

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	// Discord
	DiscordToken string

	// Twitch EventSub
	TwitchClientID     string
	TwitchClientSecret string
	WebhookCallbackURL string
	WebhookSecret      string

	// Webhook HTTP server
	HTTPAddr string

	// Persistence: Postgres when DBDsn is set, JSON file otherwise
	DBDsn        string
	SettingsFile string
}

// Load reads environment variables and applies defaults. Credentials fall
// back to local files (token.txt, twitch_secret.txt) when the env var is
// unset; missing credentials don't fail Load. Use ValidateDiscordReady and
// ValidateEventSubReady where a feature requires them.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = envOrFile("DISCORD_TOKEN", "DISCORD_TOKEN_FILE", "token.txt")
	cfg.TwitchClientID = envOrFile("TWITCH_CLIENT_ID", "TWITCH_CLIENT_ID_FILE", "")
	cfg.TwitchClientSecret = envOrFile("TWITCH_CLIENT_SECRET", "TWITCH_CLIENT_SECRET_FILE", "twitch_secret.txt")
	cfg.WebhookSecret = os.Getenv("TWITCH_WEBHOOK_SECRET")
	cfg.WebhookCallbackURL = os.Getenv("WEBHOOK_CALLBACK_URL")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":5002"
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.SettingsFile = os.Getenv("SETTINGS_FILE")
	if cfg.SettingsFile == "" {
		cfg.SettingsFile = "data/settings.json"
	}

	return cfg, nil
}

// envOrFile returns the env value, else the trimmed content of the file named
// by fileEnv (or defaultFile when that is also unset).
func envOrFile(env, fileEnv, defaultFile string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	path := os.Getenv(fileEnv)
	if path == "" {
		path = defaultFile
	}
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ValidateDiscordReady checks the credentials required to open the gateway.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord token: set DISCORD_TOKEN or provide token.txt")
	}
	return nil
}

// ValidateEventSubReady checks the credentials required for Twitch EventSub
// subscriptions and webhook delivery.
func (c *Config) ValidateEventSubReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	if c.WebhookCallbackURL == "" {
		return fmt.Errorf("missing WEBHOOK_CALLBACK_URL for EventSub delivery")
	}
	return nil
}
