// Package settings stores per-guild bot configuration: the ping channel used
// for live announcements, optional welcome channels, and the Twitch logins
// each member has registered for notifications. Guild and member ids are kept
// as strings regardless of their numeric origin so documents stay stable
// across revisions of the persisted format.
package settings

import (
	"context"
	"errors"
	"slices"
	"strings"
)

// ErrNotFound indicates the requested entry (login, channel) is not registered.
var ErrNotFound = errors.New("settings: not found")

// ErrAlreadyRegistered indicates the login is already present for that member.
var ErrAlreadyRegistered = errors.New("settings: already registered")

// Document is the whole persisted settings aggregate.
type Document struct {
	Servers map[string]*GuildConfig `json:"servers"`
}

// GuildConfig holds one guild's configuration.
type GuildConfig struct {
	PingChannelID     int64               `json:"ping_channel_id,omitempty"`
	WelcomeChannelIDs []int64             `json:"welcome_channel_ids,omitempty"`
	Users             map[string][]string `json:"users,omitempty"`
}

// Store is the persistence contract shared by the file and Postgres backends.
// Load never fails for missing or corrupt state; it falls back to an empty
// document so a damaged settings file degrades to "start empty" rather than
// taking the bot down.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error

	GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error)
	SetPingChannel(ctx context.Context, guildID string, channelID int64) error
	AddWelcomeChannel(ctx context.Context, guildID string, channelID int64) error
	RemoveWelcomeChannel(ctx context.Context, guildID string, channelID int64) error
	RegisterUser(ctx context.Context, guildID, memberID, login string) error
	UnregisterUser(ctx context.Context, guildID, memberID, login string) error

	// GuildsForLogin returns every guild id where any member has registered
	// the given login (case-insensitive). Each guild appears at most once.
	GuildsForLogin(ctx context.Context, login string) ([]string, error)
	// AllLogins returns the distinct logins registered anywhere, for the
	// startup re-subscription pass.
	AllLogins(ctx context.Context) ([]string, error)
}

// NewDocument returns an empty settings document.
func NewDocument() *Document {
	return &Document{Servers: make(map[string]*GuildConfig)}
}

// normalize repairs nil maps after a partial unmarshal so callers never need
// nil checks on the aggregate.
func (d *Document) normalize() {
	if d.Servers == nil {
		d.Servers = make(map[string]*GuildConfig)
	}
	for _, g := range d.Servers {
		if g != nil && g.Users == nil {
			g.Users = make(map[string][]string)
		}
	}
}

// guild returns the config for guildID, creating it when absent.
func (d *Document) guild(guildID string) *GuildConfig {
	g, ok := d.Servers[guildID]
	if !ok || g == nil {
		g = &GuildConfig{Users: make(map[string][]string)}
		d.Servers[guildID] = g
	}
	if g.Users == nil {
		g.Users = make(map[string][]string)
	}
	return g
}

func (g *GuildConfig) addWelcomeChannel(channelID int64) {
	if slices.Contains(g.WelcomeChannelIDs, channelID) {
		return
	}
	g.WelcomeChannelIDs = append(g.WelcomeChannelIDs, channelID)
}

func (g *GuildConfig) removeWelcomeChannel(channelID int64) error {
	i := slices.Index(g.WelcomeChannelIDs, channelID)
	if i < 0 {
		return ErrNotFound
	}
	g.WelcomeChannelIDs = slices.Delete(g.WelcomeChannelIDs, i, i+1)
	return nil
}

func (g *GuildConfig) registerLogin(memberID, login string) error {
	for _, l := range g.Users[memberID] {
		if strings.EqualFold(l, login) {
			return ErrAlreadyRegistered
		}
	}
	g.Users[memberID] = append(g.Users[memberID], login)
	return nil
}

// unregisterLogin removes login from the member's list; removing the last
// login removes the member entry entirely.
func (g *GuildConfig) unregisterLogin(memberID, login string) error {
	logins := g.Users[memberID]
	i := slices.IndexFunc(logins, func(l string) bool { return strings.EqualFold(l, login) })
	if i < 0 {
		return ErrNotFound
	}
	logins = slices.Delete(logins, i, i+1)
	if len(logins) == 0 {
		delete(g.Users, memberID)
	} else {
		g.Users[memberID] = logins
	}
	return nil
}

// hasLogin reports whether any member of the guild registered the login.
func (g *GuildConfig) hasLogin(login string) bool {
	for _, logins := range g.Users {
		for _, l := range logins {
			if strings.EqualFold(l, login) {
				return true
			}
		}
	}
	return false
}
