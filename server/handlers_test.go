package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quietterminalinteractive/teacupbot/announce"
	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/telemetry"
)

func newTestMux(t *testing.T) (http.Handler, settings.Store, *announce.Queue) {
	t.Helper()
	telemetry.Init()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	queue := announce.NewQueue()
	return NewMux(store, queue), store, queue
}

func TestHealthzOK(t *testing.T) {
	h, _, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
}

func TestWebhookChallengeEcho(t *testing.T) {
	h, _, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/twitch-webhook?hub.challenge=abc123", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "abc123" {
		t.Errorf("challenge echo = %q, want abc123", rr.Body.String())
	}
}

func TestWebhookEventNoRegistrations(t *testing.T) {
	h, _, queue := newTestMux(t)

	body := `{"event":{"broadcaster_user_name":"foo"}}`
	req := httptest.NewRequest(http.MethodPost, "/twitch-webhook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status         string `json:"status"`
		GuildsNotified int    `json:"guilds_notified"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "processed" || resp.GuildsNotified != 0 {
		t.Errorf("response = %+v, want processed/0", resp)
	}
	if queue.Len() != 0 {
		t.Errorf("nothing should be queued, len=%d", queue.Len())
	}
}

func TestWebhookEventEnqueuesPerEligibleGuild(t *testing.T) {
	h, store, queue := newTestMux(t)
	ctx := context.Background()

	// Only guild 100 registers the login, via two different members.
	if err := store.RegisterUser(ctx, "100", "1", "foo"); err != nil {
		t.Fatal(err)
	}
	if err := store.RegisterUser(ctx, "100", "2", "foo"); err != nil {
		t.Fatal(err)
	}
	if err := store.RegisterUser(ctx, "200", "3", "other"); err != nil {
		t.Fatal(err)
	}

	body := `{"event":{"broadcaster_user_name":"foo","title":"Speedrun"}}`
	req := httptest.NewRequest(http.MethodPost, "/twitch-webhook", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status         string `json:"status"`
		GuildsNotified int    `json:"guilds_notified"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.GuildsNotified != 1 {
		t.Errorf("guilds_notified = %d, want 1 (group-level dedup)", resp.GuildsNotified)
	}

	task, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if task.GuildID != "100" || task.Login != "foo" || task.Title != "Speedrun" {
		t.Errorf("task = %+v", task)
	}
	if queue.Len() != 0 {
		t.Errorf("exactly one task expected, %d left", queue.Len())
	}
}

func TestWebhookEventMissingEventField(t *testing.T) {
	h, _, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/twitch-webhook", strings.NewReader(`{"other":1}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for missing event, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ignored"`) {
		t.Errorf("body = %s, want ignored", rr.Body.String())
	}
}

func TestWebhookEventMalformed(t *testing.T) {
	h, _, _ := newTestMux(t)

	cases := map[string]string{
		"bad json":         `{"event": {`,
		"missing username": `{"event":{"title":"x"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/twitch-webhook", strings.NewReader(body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), "error") {
				t.Errorf("body = %s, want error object", rr.Body.String())
			}
		})
	}
}

func TestWebhookTitleDefault(t *testing.T) {
	h, store, queue := newTestMux(t)
	ctx := context.Background()
	if err := store.RegisterUser(ctx, "1", "1", "foo"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/twitch-webhook",
		strings.NewReader(`{"event":{"broadcaster_user_name":"foo"}}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	task, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if task.Title != noTitlePlaceholder {
		t.Errorf("title = %q, want placeholder", task.Title)
	}
}

func TestNotifyDiscord(t *testing.T) {
	h, _, _ := newTestMux(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"username":"foo"}`, http.StatusOK},
		{"missing username", `{}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/notify_discord", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body=%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestCorrelationHeaderInjected(t *testing.T) {
	h, _, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header not set")
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", got)
	}
}

func TestStartAndShutdown(t *testing.T) {
	telemetry.Init()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	queue := announce.NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, store, queue, ":0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
