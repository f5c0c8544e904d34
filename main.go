// Command teacupbot is the main entrypoint for the community bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the settings store (JSON file, or Postgres when DB_DSN is set).
//   - Re-subscribes every registered Twitch login with EventSub.
//   - Starts the webhook HTTP server and the announcement dispatcher.
//   - Connects the Discord gateway and registers the command surface.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quietterminalinteractive/teacupbot/announce"
	"github.com/quietterminalinteractive/teacupbot/config"
	"github.com/quietterminalinteractive/teacupbot/discord"
	"github.com/quietterminalinteractive/teacupbot/server"
	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/telemetry"
	"github.com/quietterminalinteractive/teacupbot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("startup precondition failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateEventSubReady(); err != nil {
		slog.Error("startup precondition failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("teacupbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Settings store: Postgres when DB_DSN is set, JSON file otherwise.
	var store settings.Store
	if cfg.DBDsn != "" {
		database, err := settings.Connect()
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		sqlStore := settings.NewSQLStore(database)
		if err := sqlStore.Migrate(context.Background()); err != nil {
			slog.Error("failed to migrate settings schema", slog.Any("err", err))
			os.Exit(1)
		}
		store = sqlStore
		slog.Info("settings store ready", slog.String("backend", "postgres"))
	} else {
		store = settings.NewFileStore(cfg.SettingsFile)
		slog.Info("settings store ready", slog.String("backend", "file"), slog.String("path", cfg.SettingsFile))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// EventSub registrar + startup re-subscription for every stored login.
	registrar := &twitchapi.Registrar{
		Helix: &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		},
		CallbackURL: cfg.WebhookCallbackURL,
		Secret:      cfg.WebhookSecret,
	}
	go registrar.ResubscribeAll(ctx, store)

	// Announcement pipeline
	queue := announce.NewQueue()

	// Webhook HTTP server
	go func() {
		if err := server.Start(ctx, store, queue, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Discord gateway; the bot starts the dispatcher once the session is ready.
	bot, err := discord.New(cfg.DiscordToken, store, registrar, nil)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	dispatcher := &announce.Dispatcher{Queue: queue, Store: store, Notifier: bot}
	bot.SetDispatcher(dispatcher)

	if err := bot.Start(ctx); err != nil {
		slog.Error("discord gateway exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
