package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quietterminalinteractive/teacupbot/announce"
	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/telemetry"
)

// noTitlePlaceholder is used when the event carries no stream title.
const noTitlePlaceholder = "No title provided"

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store settings.Store
	queue *announce.Queue
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(store settings.Store, queue *announce.Queue) *Handlers {
	return &Handlers{store: store, queue: queue}
}

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// webhookPayload is the subset of the EventSub notification we care about.
// Title is a pointer so an absent field can be told apart from an empty one.
type webhookPayload struct {
	Event *struct {
		BroadcasterUserName string  `json:"broadcaster_user_name"`
		Title               *string `json:"title"`
	} `json:"event"`
}

// HandleTwitchWebhook handles Twitch EventSub callbacks. GET carries the
// platform's challenge handshake and must echo the token back verbatim.
// POST carries stream events: one announcement task is enqueued per guild
// that has the broadcaster registered. Bodies without an event field are
// acknowledged and ignored; malformed bodies answer 500, matching the
// behaviour Twitch has been probing against since the first deployment.
func (h *Handlers) HandleTwitchWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.URL.Query().Get("hub.challenge")))
	case http.MethodPost:
		h.handleWebhookEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context())

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Error("webhook body unreadable", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "invalid JSON body"})
		return
	}
	if payload.Event == nil {
		telemetry.WebhookEventsIgnored.Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	login := payload.Event.BroadcasterUserName
	if login == "" {
		log.Error("webhook event missing broadcaster_user_name")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "missing broadcaster_user_name"})
		return
	}
	title := noTitlePlaceholder
	if payload.Event.Title != nil {
		title = *payload.Event.Title
	}
	telemetry.WebhookEventsReceived.Inc()

	guilds, err := h.store.GuildsForLogin(r.Context(), login)
	if err != nil {
		log.Error("guild resolution failed", slog.String("login", login), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "settings lookup failed"})
		return
	}
	for _, guildID := range guilds {
		h.queue.Enqueue(announce.Task{Login: login, Title: title, GuildID: guildID})
		telemetry.TasksEnqueued.Inc()
	}
	log.Info("webhook event queued",
		slog.String("login", login), slog.Int("guilds", len(guilds)))
	writeJSON(w, http.StatusOK, map[string]any{"status": "processed", "guilds_notified": len(guilds)})
}

// HandleNotifyDiscord is the legacy registration echo endpoint. It validates
// that a username is present and answers success without side effects; older
// deployments used it as the cross-process registration hop.
func (h *Handlers) HandleNotifyDiscord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "invalid JSON body"})
		return
	}
	if body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "'username' is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "User " + body.Username + " registered",
	})
}
