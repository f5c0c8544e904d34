package discord

import (
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// allowedSuitorID is the single member whose marriage proposal is accepted.
const allowedSuitorID = "606918160146235405"

const circleEmoji = "🔵"

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	switch {
	case wantsCircle(m.Content):
		if err := s.MessageReactionAdd(m.ChannelID, m.ID, circleEmoji); err != nil {
			slog.Warn("reaction failed", slog.String("channel", m.ChannelID), slog.Any("err", err))
		}
	case isProposal(m.Content):
		reply := proposalReply(m.Author.ID)
		if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
			slog.Warn("reply failed", slog.String("channel", m.ChannelID), slog.Any("err", err))
		}
	}
}

func wantsCircle(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "circle") || strings.Contains(lower, "c i r c l e")
}

func isProposal(content string) bool {
	return strings.Contains(strings.ToLower(content), "marry steven")
}

func proposalReply(authorID string) string {
	if authorID == allowedSuitorID {
		return "Yes."
	}
	return "No."
}
