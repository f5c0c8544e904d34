package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/telemetry"
)

const defaultEventSubURL = "https://api.twitch.tv/helix/eventsub/subscriptions"

// Registrar arranges Twitch EventSub webhook delivery for registered logins.
// All platform calls are best-effort: failures are logged and returned, but
// nothing retries and a batch caller never aborts on one bad login.
type Registrar struct {
	Helix       *HelixClient
	CallbackURL string
	Secret      string
	EventSubURL string // defaults to the Helix endpoint
}

type eventSubRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport eventSubTransport `json:"transport"`
}

type eventSubTransport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret"`
}

// ResolveUserID looks up the Helix user id for a login. Zero matches and
// transport failures both come back as errors; the log entry distinguishes
// them.
func (r *Registrar) ResolveUserID(ctx context.Context, login string) (string, error) {
	id, err := r.Helix.GetUserID(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		slog.Warn("twitch login unknown", slog.String("login", login))
		return "", err
	}
	if err != nil {
		slog.Warn("twitch user lookup failed", slog.String("login", login), slog.Any("err", err))
		return "", err
	}
	return id, nil
}

// Subscribe resolves the login and creates a stream.online EventSub webhook
// subscription pointing at the registrar's callback URL. Twitch answers 202
// on success; every other outcome is logged and returned without retry.
func (r *Registrar) Subscribe(ctx context.Context, login string) error {
	telemetry.SubscribeAttempts.Inc()

	userID, err := r.ResolveUserID(ctx, login)
	if err != nil {
		telemetry.SubscribeFailures.Inc()
		return err
	}

	payload := eventSubRequest{
		Type:      "stream.online",
		Version:   "1",
		Condition: map[string]string{"broadcaster_user_id": userID},
		Transport: eventSubTransport{Method: "webhook", Callback: r.CallbackURL, Secret: r.Secret},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		telemetry.SubscribeFailures.Inc()
		return fmt.Errorf("encode eventsub request: %w", err)
	}

	endpoint := r.EventSubURL
	if endpoint == "" {
		endpoint = defaultEventSubURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		telemetry.SubscribeFailures.Inc()
		return err
	}
	tok, err := r.Helix.AppTokenSource.Get(ctx)
	if err != nil {
		telemetry.SubscribeFailures.Inc()
		return err
	}
	req.Header.Set("Client-Id", r.Helix.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Helix.http().Do(req)
	if err != nil {
		telemetry.SubscribeFailures.Inc()
		slog.Warn("eventsub subscribe failed", slog.String("login", login), slog.Any("err", err))
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusAccepted {
		telemetry.SubscribeFailures.Inc()
		b, _ := io.ReadAll(resp.Body)
		slog.Warn("eventsub subscribe rejected",
			slog.String("login", login), slog.String("status", resp.Status), slog.String("body", string(b)))
		return fmt.Errorf("eventsub subscribe rejected: %s", resp.Status)
	}

	slog.Info("eventsub subscription created", slog.String("login", login), slog.String("user_id", userID))
	return nil
}

// ResubscribeAll subscribes every login present anywhere in the settings
// store. Runs once at startup; fully sequential, and a failing login delays
// but never aborts the rest of the batch.
func (r *Registrar) ResubscribeAll(ctx context.Context, store settings.Store) {
	logins, err := store.AllLogins(ctx)
	if err != nil {
		slog.Error("resubscribe: listing logins failed", slog.Any("err", err))
		return
	}
	slog.Info("resubscribing registered logins", slog.Int("count", len(logins)))
	for _, login := range logins {
		if err := r.Subscribe(ctx, login); err != nil {
			slog.Warn("resubscribe failed, continuing", slog.String("login", login), slog.Any("err", err))
		}
	}
}
