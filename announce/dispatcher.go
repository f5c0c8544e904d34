package announce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quietterminalinteractive/teacupbot/settings"
	"github.com/quietterminalinteractive/teacupbot/telemetry"
)

// Notifier sends a message to a channel. The Discord session satisfies this
// through a thin adapter so the dispatcher stays testable without a gateway
// connection.
type Notifier interface {
	Send(channelID int64, message string) error
}

// Dispatcher is the long-running delivery loop. It dequeues tasks, resolves
// each task's guild to its configured ping channel, and sends the formatted
// announcement. Every failure is per-task: a guild without a ping channel or
// a failed send drops that task and the loop continues.
type Dispatcher struct {
	Queue    *Queue
	Store    settings.Store
	Notifier Notifier
}

// Run processes tasks until the context is cancelled. It never returns an
// error from task handling; only context cancellation ends the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("announcement dispatcher started")
	for {
		task, err := d.Queue.Dequeue(ctx)
		if err != nil {
			slog.Info("announcement dispatcher stopped", slog.Any("reason", err))
			return
		}
		d.deliver(ctx, task)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, task Task) {
	cfg, err := d.Store.GuildConfig(ctx, task.GuildID)
	if err != nil {
		slog.Error("announcement dropped: settings lookup failed",
			slog.String("guild", task.GuildID), slog.String("login", task.Login), slog.Any("err", err))
		telemetry.AnnouncementsDropped.Inc()
		return
	}
	if cfg.PingChannelID == 0 {
		slog.Warn("announcement dropped: ping channel not set",
			slog.String("guild", task.GuildID), slog.String("login", task.Login))
		telemetry.AnnouncementsDropped.Inc()
		return
	}
	if err := d.Notifier.Send(cfg.PingChannelID, FormatAnnouncement(task.Login, task.Title)); err != nil {
		slog.Error("announcement dropped: send failed",
			slog.String("guild", task.GuildID), slog.Int64("channel", cfg.PingChannelID), slog.Any("err", err))
		telemetry.AnnouncementsDropped.Inc()
		return
	}
	telemetry.AnnouncementsSent.Inc()
	slog.Info("announcement sent",
		slog.String("guild", task.GuildID), slog.String("login", task.Login), slog.String("title", task.Title))
}

// FormatAnnouncement renders the live notification message.
func FormatAnnouncement(login, title string) string {
	return fmt.Sprintf("🔴 %s is live on Twitch! \n**%s**\nhttps://www.twitch.tv/%s", login, title, login)
}
