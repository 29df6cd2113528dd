package music

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/lavaflow/lavaflow/internal/bot"
	"github.com/lavaflow/lavaflow/lavaflow"
)

func init() {
	bot.Register(&Module{})
}

// Module exposes playback control commands backed by the audio manager
// and announces playback milestones in the player's text channel.
type Module struct {
	session *discordgo.Session
	manager *lavaflow.Manager
}

func (m *Module) Name() string { return "music" }

func (m *Module) Init(deps bot.ModuleDependencies) error {
	if deps.Manager == nil {
		return fmt.Errorf("music module requires an audio manager")
	}
	m.session = deps.Session
	m.manager = deps.Manager

	m.manager.Events.TrackStart.Subscribe(m.announceTrackStart)
	m.manager.Events.QueueEnd.Subscribe(m.announceQueueEnd)
	m.manager.Events.TrackError.Subscribe(m.announceTrackError)

	return nil
}

func (m *Module) Shutdown() error { return nil }

func (m *Module) EventHandlers() []bot.EventHandler { return nil }

// notify posts an embed to the player's text channel, if it has one.
func (m *Module) notify(player *lavaflow.Player, embed *discordgo.MessageEmbed) {
	if m.session == nil || player.TextChannelID() == 0 {
		return
	}
	if _, err := m.session.ChannelMessageSendEmbed(player.TextChannelID().String(), embed); err != nil {
		slog.Warn("failed to send channel notification", "guild_id", player.GuildID(), "error", err)
	}
}

func (m *Module) announceTrackStart(e lavaflow.TrackStartEvent) {
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: trackLine(e.Track),
		Color:       colorSuccess,
	}
	if e.Track.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Track.Thumbnail}
	}
	m.notify(e.Player, embed)
}

func (m *Module) announceQueueEnd(e lavaflow.QueueEndEvent) {
	m.notify(e.Player, &discordgo.MessageEmbed{
		Title:       "Queue Finished",
		Description: "Nothing left to play. Add more tracks with /play.",
		Color:       colorSuccess,
	})
}

func (m *Module) announceTrackError(e lavaflow.TrackErrorEvent) {
	description := "The current track failed to play."
	if e.Track != nil {
		description = fmt.Sprintf("%s failed to play: %s", trackLine(*e.Track), e.Exception.Message)
	}
	m.notify(e.Player, &discordgo.MessageEmbed{
		Title:       "Playback Error",
		Description: description,
		Color:       colorError,
	})
}
