package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quietterminalinteractive/teacupbot/settings"
)

var commandDefinitions = []*discordgo.ApplicationCommand{
	{
		Name:        "setchannel",
		Description: "Sets the ping channel to the current channel.",
	},
	{
		Name:        "setwelcome",
		Description: "Adds the current channel to the welcome channels.",
	},
	{
		Name:        "removewelcome",
		Description: "Removes the current channel from the welcome channels.",
	},
	{
		Name:        "register",
		Description: "Register a Twitch username for notifications.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "username",
				Description: "Twitch username",
				Required:    true,
			},
		},
	},
	{
		Name:        "unregister",
		Description: "Unregister a Twitch username.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "username",
				Description: "Twitch username",
				Required:    true,
			},
		},
	},
	{
		Name:        "info",
		Description: "Display bot information.",
	},
	{
		Name:        "help",
		Description: "Show a list of available commands.",
	},
}

func (b *Bot) registerCommands(s *discordgo.Session) error {
	for _, cmd := range commandDefinitions {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
	}
	slog.Info("slash commands registered", slog.Int("count", len(commandDefinitions)))
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch i.ApplicationCommandData().Name {
	case "setchannel":
		b.handleSetChannel(s, i)
	case "setwelcome":
		b.handleSetWelcome(s, i)
	case "removewelcome":
		b.handleRemoveWelcome(s, i)
	case "register":
		b.handleRegister(s, i)
	case "unregister":
		b.handleUnregister(s, i)
	case "info":
		b.handleInfo(s, i)
	case "help":
		b.handleHelp(s, i)
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		slog.Error("interaction response failed", slog.Any("err", err))
	}
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		slog.Error("interaction response failed", slog.Any("err", err))
	}
}

// memberID returns the invoking user's id for both guild and DM interactions.
func memberID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optionValue(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil {
		respond(s, i, "Could not determine the current channel.")
		return
	}
	if err := b.store.SetPingChannel(context.Background(), i.GuildID, channelID); err != nil {
		slog.Error("set ping channel failed", slog.String("guild", i.GuildID), slog.Any("err", err))
		respond(s, i, "Failed to save the ping channel.")
		return
	}
	respond(s, i, fmt.Sprintf("Ping channel set to: <#%s>", i.ChannelID))
}

func (b *Bot) handleSetWelcome(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil {
		respond(s, i, "Could not determine the current channel.")
		return
	}
	if err := b.store.AddWelcomeChannel(context.Background(), i.GuildID, channelID); err != nil {
		slog.Error("add welcome channel failed", slog.String("guild", i.GuildID), slog.Any("err", err))
		respond(s, i, "Failed to save the welcome channel.")
		return
	}
	respond(s, i, fmt.Sprintf("Welcome messages will be posted in <#%s>.", i.ChannelID))
}

func (b *Bot) handleRemoveWelcome(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID, err := strconv.ParseInt(i.ChannelID, 10, 64)
	if err != nil {
		respond(s, i, "Could not determine the current channel.")
		return
	}
	err = b.store.RemoveWelcomeChannel(context.Background(), i.GuildID, channelID)
	if errors.Is(err, settings.ErrNotFound) {
		respond(s, i, "This channel is not a welcome channel.")
		return
	}
	if err != nil {
		slog.Error("remove welcome channel failed", slog.String("guild", i.GuildID), slog.Any("err", err))
		respond(s, i, "Failed to update the welcome channels.")
		return
	}
	respond(s, i, fmt.Sprintf("<#%s> removed from the welcome channels.", i.ChannelID))
}

func (b *Bot) handleRegister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	username := optionValue(i, "username")
	ctx := context.Background()

	err := b.store.RegisterUser(ctx, i.GuildID, memberID(i), username)
	if errors.Is(err, settings.ErrAlreadyRegistered) {
		respond(s, i, fmt.Sprintf("You are already registered for %s.", username))
		return
	}
	if err != nil {
		slog.Error("register failed", slog.String("guild", i.GuildID), slog.Any("err", err))
		respond(s, i, "Error saving your registration.")
		return
	}

	// Best-effort: the registration is kept even when the platform call fails.
	if err := b.registrar.Subscribe(ctx, username); err != nil {
		respond(s, i, fmt.Sprintf("Failed to register %s with Twitch API.", username))
		return
	}
	respond(s, i, fmt.Sprintf("Registered Twitch username: %s", username))
}

func (b *Bot) handleUnregister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	username := optionValue(i, "username")

	err := b.store.UnregisterUser(context.Background(), i.GuildID, memberID(i), username)
	if errors.Is(err, settings.ErrNotFound) {
		respond(s, i, fmt.Sprintf("You are not registered for %s.", username))
		return
	}
	if err != nil {
		slog.Error("unregister failed", slog.String("guild", i.GuildID), slog.Any("err", err))
		respond(s, i, "Error removing your registration.")
		return
	}
	respond(s, i, fmt.Sprintf("Unregistered Twitch username: %s", username))
}

func (b *Bot) handleInfo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	totalUsers := 0
	for _, guild := range s.State.Guilds {
		totalUsers += guild.MemberCount
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Bot Information",
		Description: "Details about the bot:",
		Color:       0x3498db,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bot Name", Value: s.State.User.Username},
			{Name: "Uptime", Value: formatUptime(time.Since(b.startTime))},
			{Name: "Developers", Value: "[GitHub](https://github.com/QuietTerminalInteractive)"},
			{Name: "Source Code", Value: "[Repository](https://github.com/quietterminalinteractive/teacupbot)"},
			{Name: "Total Users", Value: strconv.Itoa(totalUsers)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Use /help for available commands."},
	}
	respondEmbed(s, i, embed)
}

func (b *Bot) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	embed := &discordgo.MessageEmbed{
		Title:       "Help - Commands",
		Description: "List of all available commands:",
		Color:       0x3498db,
	}
	for _, cmd := range commandDefinitions {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "/" + cmd.Name,
			Value: cmd.Description,
		})
	}
	respondEmbed(s, i, embed)
}

// formatUptime renders a duration as whole hours and minutes.
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
}
