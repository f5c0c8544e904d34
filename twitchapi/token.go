package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenGetter yields a valid Twitch app access token.
type TokenGetter interface {
	Get(ctx context.Context) (string, error)
}

// TokenSource fetches and caches a Twitch app access (client credentials)
// token through oauth2/clientcredentials, which handles expiry and refresh.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to the Twitch id endpoint
	HTTPClient   *http.Client

	mu    sync.Mutex
	inner oauth2.TokenSource
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.Lock()
	if ts.inner == nil {
		if ts.ClientID == "" || ts.ClientSecret == "" {
			ts.mu.Unlock()
			return "", errors.New("missing client id/secret for twitch app token")
		}
		tokenURL := ts.TokenURL
		if tokenURL == "" {
			tokenURL = defaultTokenURL
		}
		cfg := &clientcredentials.Config{
			ClientID:     ts.ClientID,
			ClientSecret: ts.ClientSecret,
			TokenURL:     tokenURL,
		}
		cctx := context.Background()
		if ts.HTTPClient != nil {
			cctx = context.WithValue(cctx, oauth2.HTTPClient, ts.HTTPClient)
		}
		ts.inner = cfg.TokenSource(cctx)
	}
	inner := ts.inner
	ts.mu.Unlock()

	tok, err := inner.Token()
	if err != nil {
		return "", fmt.Errorf("twitch token request failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	return tok.AccessToken, nil
}
