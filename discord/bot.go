// Package discord owns the gateway session: slash commands, message
// triggers, member-join greetings, and the channel-send primitive the
// announcement dispatcher delivers through.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quietterminalinteractive/teacupbot/announce"
	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/twitchapi"
)

// Bot wires the Discord session to the settings store, the subscription
// registrar, and the announcement dispatcher.
type Bot struct {
	session    *discordgo.Session
	store      settings.Store
	registrar  *twitchapi.Registrar
	dispatcher *announce.Dispatcher

	startTime      time.Time
	dispatcherOnce sync.Once
}

// New creates the session and registers the event handlers. The session is
// not opened yet; call Start.
func New(token string, store settings.Store, registrar *twitchapi.Registrar, dispatcher *announce.Dispatcher) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	b := &Bot{
		session:    session,
		store:      store,
		registrar:  registrar,
		dispatcher: dispatcher,
		startTime:  time.Now(),
	}
	return b, nil
}

// SetDispatcher attaches the announcement dispatcher. The dispatcher needs
// the bot as its notifier, so it is constructed after New and attached here
// before Start.
func (b *Bot) SetDispatcher(d *announce.Dispatcher) {
	b.dispatcher = d
}

// Start opens the gateway connection and blocks until ctx is cancelled. The
// dispatcher is started from the ready handler so announcements only flow
// once the session can resolve channels.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("logged in", slog.String("user", s.State.User.Username))
		if err := b.registerCommands(s); err != nil {
			slog.Error("slash command registration failed", slog.Any("err", err))
		}
		if b.dispatcher != nil {
			b.dispatcherOnce.Do(func() {
				go b.dispatcher.Run(ctx)
			})
		}
	})
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(b.handleMessage)
	b.session.AddHandler(b.handleMemberJoin)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	<-ctx.Done()
	return b.session.Close()
}

// Send implements announce.Notifier over the gateway session.
func (b *Bot) Send(channelID int64, message string) error {
	_, err := b.session.ChannelMessageSend(strconv.FormatInt(channelID, 10), message)
	return err
}

// handleMemberJoin greets new members in every configured welcome channel.
func (b *Bot) handleMemberJoin(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	cfg, err := b.store.GuildConfig(context.Background(), m.GuildID)
	if err != nil {
		slog.Error("welcome lookup failed", slog.String("guild", m.GuildID), slog.Any("err", err))
		return
	}
	for _, channelID := range cfg.WelcomeChannelIDs {
		greeting := fmt.Sprintf("Welcome to the server, %s!", m.User.Mention())
		if _, err := s.ChannelMessageSend(strconv.FormatInt(channelID, 10), greeting); err != nil {
			slog.Warn("welcome message failed",
				slog.String("guild", m.GuildID), slog.Int64("channel", channelID), slog.Any("err", err))
		}
	}
}
