package music

import (
	"github.com/bwmarrin/discordgo"

	"github.com/lavaflow/lavaflow/internal/bot"
)

var (
	minOne  = float64(1)
	minZero = float64(0)
	maxVol  = float64(1000)
)

func (m *Module) Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Search for a track or playlist and add it to the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Search terms or a direct URL",
					Required:    true,
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Number of tracks to skip",
					MinValue:    &minOne,
				},
			},
		},
		{
			Name:        "previous",
			Description: "Play the previous track again",
		},
		{
			Name:        "pause",
			Description: "Pause playback",
		},
		{
			Name:        "resume",
			Description: "Resume playback",
		},
		{
			Name:        "stop",
			Description: "Stop playback and clear the queue",
		},
		{
			Name:        "seek",
			Description: "Jump to a position in the current track",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "position",
					Description: "Position in seconds",
					Required:    true,
					MinValue:    &minZero,
				},
			},
		},
		{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "level",
					Description: "Volume from 0 to 1000, 100 is normal",
					Required:    true,
					MinValue:    &minZero,
					MaxValue:    maxVol,
				},
			},
		},
		{
			Name:        "loop",
			Description: "Set the repeat mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Repeat mode",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "off", Value: "off"},
						{Name: "track", Value: "track"},
						{Name: "queue", Value: "queue"},
					},
				},
			},
		},
		{
			Name:        "shuffle",
			Description: "Shuffle the upcoming tracks",
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
		},
		{
			Name:        "nowplaying",
			Description: "Show the current track",
		},
		{
			Name:        "autoplay",
			Description: "Keep playing related tracks when the queue runs out",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Whether autoplay is on",
					Required:    true,
				},
			},
		},
		{
			Name:        "disconnect",
			Description: "Disconnect from the voice channel and discard the player",
		},
	}
}

func (m *Module) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":       m.handlePlay,
		"skip":       m.handleSkip,
		"previous":   m.handlePrevious,
		"pause":      m.handlePause,
		"resume":     m.handleResume,
		"stop":       m.handleStop,
		"seek":       m.handleSeek,
		"volume":     m.handleVolume,
		"loop":       m.handleLoop,
		"shuffle":    m.handleShuffle,
		"queue":      m.handleQueue,
		"nowplaying": m.handleNowPlaying,
		"autoplay":   m.handleAutoplay,
		"disconnect": m.handleDisconnect,
	}
}
